package format

import "testing"

func TestHumanBytes(t *testing.T) {
	cases := map[int64]string{
		0:             "0 B",
		999:           "999 B",
		1000:          "1.0 KB",
		1_500_000:     "1.5 MB",
		2_000_000_000: "2.0 GB",
	}

	for in, want := range cases {
		if got := HumanBytes(in); got != want {
			t.Errorf("HumanBytes(%d) = %q, want %q", in, got, want)
		}
	}
}

func TestHumanNumber(t *testing.T) {
	cases := map[uint64]string{
		7:         "7",
		999:       "999",
		1000:      "1.0K",
		2_800_000: "2.8M",
	}

	for in, want := range cases {
		if got := HumanNumber(in); got != want {
			t.Errorf("HumanNumber(%d) = %q, want %q", in, got, want)
		}
	}
}
