package bridge

import "testing"

func TestStripThinkTags(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "no tags",
			in:   "The capital of France is Paris.",
			want: "The capital of France is Paris.",
		},
		{
			name: "leading think block",
			in:   "<think>user asks about weather, keep it short</think>\n\nSunny today.",
			want: "Sunny today.",
		},
		{
			name: "multiline reasoning",
			in:   "<think>\nstep one\nstep two\n</think>\nAnswer: 42",
			want: "Answer: 42",
		},
		{
			name: "case insensitive",
			in:   "<THINK>hmm</THINK>ok",
			want: "ok",
		},
		{
			name: "multiple blocks",
			in:   "<think>a</think>first<think>b</think> second",
			want: "first second",
		},
		{
			name: "collapses leftover blank lines",
			in:   "before\n\n<think>gone</think>\n\nafter",
			want: "before\n\nafter",
		},
		{
			name: "only a think block",
			in:   "<think>nothing to say</think>",
			want: "",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := stripThinkTags(tc.in); got != tc.want {
				t.Fatalf("got %q, want %q", got, tc.want)
			}
		})
	}
}
