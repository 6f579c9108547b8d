package core

import (
	"ip5306-hal/errcode"

	"gopkg.in/yaml.v3"
)

// As[T] asserts a payload to the concrete value type T.
// Pointers are not accepted. A nil payload is treated as the zero value of T.
func As[T any](v any) (T, errcode.Code) {
	var zero T
	if v == nil {
		return zero, ""
	}
	t, ok := v.(T)
	if !ok {
		return zero, errcode.InvalidPayload
	}
	return t, ""
}

// DecodeParams normalises device params into T. Typed values (T or *T) are
// taken as-is; anything else (maps from YAML or JSON config) is re-encoded
// and decoded through T's yaml tags. A nil src yields the zero T.
func DecodeParams[T any](src any) (T, error) {
	var out T
	switch v := src.(type) {
	case nil:
		return out, nil
	case T:
		return v, nil
	case *T:
		if v == nil {
			return out, errcode.InvalidParams
		}
		return *v, nil
	}
	raw, err := yaml.Marshal(src)
	if err != nil {
		return out, errcode.Wrap(errcode.InvalidParams, "decode_params", err)
	}
	if err := yaml.Unmarshal(raw, &out); err != nil {
		return out, errcode.Wrap(errcode.InvalidParams, "decode_params", err)
	}
	return out, nil
}
