package capture

import "testing"

func TestFrameSizeMatchesI420Layout(t *testing.T) {
	got := FrameSize(640, 480)
	want := 640 * 480 * 3 / 2
	if got != want {
		t.Fatalf("FrameSize(640,480) = %d, want %d", got, want)
	}
}

func TestNewDecoderBuildsRTSPArgs(t *testing.T) {
	d := NewDecoder("rtsp://camera.local/stream", 640, 480, 5)
	args := d.args()

	found := false
	for _, a := range args {
		if a == "rtsp_transport" || a == "-rtsp_transport" {
			found = true
		}
	}
	if !found {
		t.Fatalf("args() = %v, want rtsp_transport flag for an rtsp:// url", args)
	}
}

func TestNewDecoderOmitsReconnectArgsForRTSP(t *testing.T) {
	d := NewDecoder("rtsp://camera.local/stream", 640, 480, 5)
	args := d.args()
	for _, a := range args {
		if a == "-reconnect" {
			t.Fatalf("args() = %v, rtsp:// url should not carry http reconnect flags", args)
		}
	}
}
