package research

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSubQuestions(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    []string
		wantErr bool
	}{
		{
			name: "bare array",
			raw:  `["q1", "q2", "q3", "q4"]`,
			want: []string{"q1", "q2", "q3", "q4"},
		},
		{
			name: "json code fence",
			raw:  "```json\n[\"q1\", \"q2\"]\n```",
			want: []string{"q1", "q2"},
		},
		{
			name: "plain code fence",
			raw:  "```\n[\"q1\"]\n```",
			want: []string{"q1"},
		},
		{
			name: "dedupe keeps order",
			raw:  `["q1", "q2", "q1", "q3"]`,
			want: []string{"q1", "q2", "q3"},
		},
		{
			name: "truncated to cap",
			raw:  `["q1","q2","q3","q4","q5","q6","q7","q8"]`,
			want: []string{"q1", "q2", "q3", "q4", "q5", "q6"},
		},
		{
			name: "blank entries dropped",
			raw:  `["q1", "  ", "q2"]`,
			want: []string{"q1", "q2"},
		},
		{
			name:    "prose instead of array",
			raw:     "Here are some questions you could ask.",
			wantErr: true,
		},
		{
			name:    "empty array",
			raw:     `[]`,
			wantErr: true,
		},
		{
			name:    "only blank entries",
			raw:     `["", "  "]`,
			wantErr: true,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := parseSubQuestions(tc.raw)
			if tc.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestParseVerdict(t *testing.T) {
	tests := []struct {
		name       string
		verdict    string
		passed     bool
		reason     string
		rawAsWhole bool
	}{
		{name: "valid", verdict: "VALID", passed: true},
		{name: "valid with trailing prose", verdict: "VALID - well supported throughout", passed: true},
		{name: "invalid with reason", verdict: "INVALID: missing pricing comparison", reason: "missing pricing comparison"},
		{name: "invalid lowercase", verdict: "invalid: one-sided", reason: "one-sided"},
		// "INVALID" 含有 "VALID" 子串,必须先判 INVALID
		{name: "invalid without colon", verdict: "INVALID missing sources", reason: "missing sources"},
		{name: "invalid without reason", verdict: "INVALID", reason: "analysis rejected without a stated reason"},
		{name: "unrecognized is rejection", verdict: "The analysis looks fine to me.", rawAsWhole: true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			passed, reason := parseVerdict(tc.verdict)
			assert.Equal(t, tc.passed, passed)
			if tc.rawAsWhole {
				assert.Equal(t, tc.verdict, reason)
				return
			}
			assert.Equal(t, tc.reason, reason)
		})
	}
}

func TestStateCloneIsDeep(t *testing.T) {
	orig := State{
		Query:        "q",
		SubQuestions: []string{"a", "b"},
		Findings:     map[string]string{"a": "fa"},
		Validation:   &Validation{Passed: false, Reason: "r"},
		Rejections:   []string{"r"},
	}

	c := orig.Clone()
	c.SubQuestions[0] = "mutated"
	c.Findings["a"] = "mutated"
	c.Validation.Reason = "mutated"
	c.Rejections[0] = "mutated"

	assert.Equal(t, "a", orig.SubQuestions[0])
	assert.Equal(t, "fa", orig.Findings["a"])
	assert.Equal(t, "r", orig.Validation.Reason)
	assert.Equal(t, "r", orig.Rejections[0])
}
