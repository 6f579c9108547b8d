package conv

import "testing"

func TestHex8(t *testing.T) {
	cases := []struct {
		in   uint8
		want string
	}{
		{0x00, "0x00"},
		{0x05, "0x05"},
		{0x75, "0x75"},
		{0xF0, "0xf0"},
	}
	for _, tc := range cases {
		if got := Hex8(tc.in); got != tc.want {
			t.Errorf("Hex8(%d)=%q want %q", tc.in, got, tc.want)
		}
	}
}

func TestAppendHex8_Appends(t *testing.T) {
	got := string(AppendHex8([]byte("reg "), 0x78))
	if got != "reg 0x78" {
		t.Fatalf("got %q", got)
	}
}
