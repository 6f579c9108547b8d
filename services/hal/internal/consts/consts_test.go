package consts

import "testing"

func TestTokens(t *testing.T) {
	if TokConfig != "config" || TokHAL != "hal" || TokCap != "cap" {
		t.Fatal("top-level tokens changed unexpectedly")
	}
	if CtrlRead != "read" || CtrlPollStart != "poll_start" || CtrlPollStop != "poll_stop" {
		t.Fatal("control tokens changed unexpectedly")
	}
}
