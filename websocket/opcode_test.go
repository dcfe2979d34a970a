package websocket

import "testing"

func TestOpCodeIsControl(t *testing.T) {
	cases := map[OpCode]bool{
		OpContinuation: false,
		OpText:         false,
		OpBinary:       false,
		OpClose:        true,
		OpPing:         true,
		OpPong:         true,
	}
	for op, want := range cases {
		if got := op.IsControl(); got != want {
			t.Errorf("%v.IsControl() = %v, want %v", op, got, want)
		}
	}
}

func TestOpCodeString(t *testing.T) {
	if OpText.String() != "text" {
		t.Errorf("OpText.String() = %q", OpText.String())
	}
	if OpCode(0xF).String() != "unknown" {
		t.Errorf("unknown opcode should stringify to 'unknown'")
	}
}
