package websocket

import "testing"

func TestCloseCodeValid(t *testing.T) {
	valid := []CloseCode{CloseNormal, CloseGoingAway, CloseProtocolError, 3000, 4999}
	for _, c := range valid {
		if !c.Valid() {
			t.Errorf("%d should be valid", c)
		}
	}
	invalid := []CloseCode{0, 999, 1004, 1005, 1006, 1012, 1999, 2999}
	for _, c := range invalid {
		if c.Valid() {
			t.Errorf("%d should be invalid", c)
		}
	}
}
