package s3policy

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConditionMarshalJSON(t *testing.T) {
	tests := []struct {
		name string
		cond Condition
		want string
	}{
		{"Exact", Exact("bucket", "photos"), `{"bucket":"photos"}`},
		{"ExactNoHTMLEscape", Exact("success_action_redirect", "https://example.com/?a=1&b=<2>"), `{"success_action_redirect":"https://example.com/?a=1&b=<2>"}`},
		{"StartsWith", StartsWith("key", "uploads/"), `["starts-with","$key","uploads/"]`},
		{"StartsWithDollarField", StartsWith("$Content-Type", "image/"), `["starts-with","$Content-Type","image/"]`},
		{"StartsWithEmptyPrefix", StartsWith("key", ""), `["starts-with","$key",""]`},
		{"ContentLengthRange", ContentLengthRange(1, 1048576), `["content-length-range",1,1048576]`},
		{"Raw", Raw(json.RawMessage(`["eq","$x-amz-meta-tag","a"]`)), `["eq","$x-amz-meta-tag","a"]`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := encodeJSON(tt.cond)
			require.NoError(t, err)
			assert.Equal(t, tt.want, string(got))
		})
	}

	t.Run("InvalidRaw", func(t *testing.T) {
		_, err := json.Marshal(Raw(json.RawMessage(`{"broken"`)))
		assert.Error(t, err)
	})

	t.Run("ZeroValue", func(t *testing.T) {
		_, err := Condition{}.MarshalJSON()
		assert.ErrorIs(t, err, ErrInvalidCondition)
	})
}

func TestConditionUnmarshalJSON(t *testing.T) {
	t.Run("Shapes", func(t *testing.T) {
		var conds []Condition
		err := json.Unmarshal([]byte(`[
			{"acl":"private"},
			["starts-with","$key","a/"],
			["eq","$bucket","b"],
			["content-length-range",1,10]
		]`), &conds)
		require.NoError(t, err)
		require.Len(t, conds, 4)

		assert.Equal(t, Exact("acl", "private"), conds[0])
		assert.Equal(t, StartsWith("key", "a/"), conds[1])
		assert.Equal(t, Exact("bucket", "b"), conds[2])
		assert.Equal(t, ConditionContentLengthRange, conds[3].Kind())
		assert.Equal(t, int64(1), conds[3].Min())
		assert.Equal(t, int64(10), conds[3].Max())
	})

	invalid := []string{
		`{}`,
		`{"a":"1","b":"2"}`,
		`{"a":1}`,
		`["starts-with","key","a"]`,
		`["starts-with","$key"]`,
		`["content-length-range","1",10]`,
		`["content-length-range",1.5,10]`,
		`["matches","$key","a"]`,
		`"acl"`,
	}
	for _, raw := range invalid {
		t.Run(raw, func(t *testing.T) {
			var c Condition
			err := json.Unmarshal([]byte(raw), &c)
			assert.ErrorIs(t, err, ErrInvalidCondition)
		})
	}
}
