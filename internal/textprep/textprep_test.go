package textprep

import "testing"

func TestPlain(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "plain paragraphs",
			in:   "Once upon a time.\n\nThe end.",
			want: "Once upon a time.\n\nThe end.",
		},
		{
			name: "heading becomes sentence",
			in:   "# The Brave Fox\n\nA fox lived in the woods.",
			want: "The Brave Fox.\n\nA fox lived in the woods.",
		},
		{
			name: "heading keeps own punctuation",
			in:   "## Where is Fox?\n\nHiding.",
			want: "Where is Fox?\n\nHiding.",
		},
		{
			name: "emphasis and links",
			in:   "The *fox* ran to [the river](https://example.com) **fast**.",
			want: "The fox ran to the river fast.",
		},
		{
			name: "soft breaks join lines",
			in:   "The fox\nran home.",
			want: "The fox ran home.",
		},
		{
			name: "list items are lines",
			in:   "Things the fox packed:\n\n- an apple\n- a map\n- a lantern",
			want: "Things the fox packed:\n\nan apple\na map\na lantern",
		},
		{
			name: "code and html dropped",
			in:   "Before.\n\n```go\nfmt.Println(1)\n```\n\n<div>hidden</div>\n\nAfter `x` here.",
			want: "Before.\n\nAfter here.",
		},
		{
			name: "images dropped",
			in:   "Look ![a fox](fox.png) there.",
			want: "Look there.",
		},
		{
			name: "empty",
			in:   "   ",
			want: "",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Plain(tt.in); got != tt.want {
				t.Errorf("Plain() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestNormalize(t *testing.T) {
	got := Normalize("  Café \t au\n\nlait ")
	if got != "Café au lait" {
		t.Errorf("Normalize() = %q", got)
	}
}

func TestWordCount(t *testing.T) {
	if n := WordCount("one  two\nthree\t four"); n != 4 {
		t.Errorf("WordCount = %d, want 4", n)
	}
	if n := WordCount(""); n != 0 {
		t.Errorf("WordCount(empty) = %d", n)
	}
}

func TestTitle(t *testing.T) {
	if got := Title("Intro line.\n\n## The *Sleepy* Owl\n\nText.\n\n# Later"); got != "The Sleepy Owl" {
		t.Errorf("Title() = %q", got)
	}
	if got := Title("No headings here."); got != "" {
		t.Errorf("Title() = %q, want empty", got)
	}
}
