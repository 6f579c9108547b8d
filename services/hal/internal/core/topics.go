package core

import (
	"ip5306-hal/bus"
	"ip5306-hal/services/hal/internal/consts"
)

// Opaque-topic helpers

func T(tokens ...any) bus.Topic { return bus.T(tokens...) }

func TopicConfigHAL() bus.Topic { return T(consts.TokConfig, consts.TokHAL) }
func TopicHALState() bus.Topic  { return T(consts.TokHAL, consts.TokState) }

// hal/cap/<domain>/<kind>/<name>/...
func capBase(domain, kind, name string) bus.Topic {
	return T(consts.TokHAL, consts.TokCap, domain, kind, name)
}

func CapInfo(domain, kind, name string) bus.Topic {
	return capBase(domain, kind, name).Append(consts.TokInfo)
}
func CapStatus(domain, kind, name string) bus.Topic {
	return capBase(domain, kind, name).Append(consts.TokStatus)
}
func CapValue(domain, kind, name string) bus.Topic {
	return capBase(domain, kind, name).Append(consts.TokValue)
}
func CapEvent(domain, kind, name string) bus.Topic {
	return capBase(domain, kind, name).Append(consts.TokEvent)
}
func CapEventTagged(domain, kind, name, tag string) bus.Topic {
	return CapEvent(domain, kind, name).Append(tag)
}

// capability control
// hal/cap/<domain>/<kind>/<name>/control/<verb>
func CapCtrl(domain, kind, name, verb string) bus.Topic {
	return capBase(domain, kind, name).Append(consts.TokControl, verb)
}

// hal/cap/+/+/+/control/+
func ctrlWildcard() bus.Topic {
	return T(consts.TokHAL, consts.TokCap, bus.WildSingle, bus.WildSingle, bus.WildSingle, consts.TokControl, bus.WildSingle)
}
