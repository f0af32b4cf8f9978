package mqtt

import "testing"

func TestTopics(t *testing.T) {
	topics := Topics{}

	tests := []struct {
		got  string
		want string
	}{
		{topics.SystemStatus(), "gatewise/system/status"},
		{topics.BarrierState("b1"), "gatewise/barrier/b1/state"},
		{topics.Capture("cam1"), "gatewise/lpr/cam1/capture"},
		{topics.Connectivity("dev1"), "gatewise/device/dev1/connectivity"},
	}

	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("topic = %q, want %q", tt.got, tt.want)
		}
	}
}

func TestPublishValidation(t *testing.T) {
	c := &Client{}

	if err := c.Publish("", []byte("x"), 0, false); err != ErrInvalidTopic {
		t.Errorf("empty topic err = %v, want ErrInvalidTopic", err)
	}
	if err := c.Publish("gatewise/system/status", []byte("x"), 3, false); err != ErrInvalidQoS {
		t.Errorf("bad qos err = %v, want ErrInvalidQoS", err)
	}
}
