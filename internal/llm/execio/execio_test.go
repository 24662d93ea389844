package execio

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xeipuuv/gojsonschema"
)

func validate(t *testing.T, schema string, doc []byte) *gojsonschema.Result {
	t.Helper()
	res, err := gojsonschema.Validate(gojsonschema.NewStringLoader(schema), gojsonschema.NewBytesLoader(doc))
	require.NoError(t, err)
	return res
}

func TestInputMatchesSchema(t *testing.T) {
	t.Parallel()

	in := Input{
		Role:    "Architect",
		Context: "Draft the plan.",
		History: []*Message{{Role: "user", Content: "build a todo app"}},
	}
	raw, err := json.Marshal(&in)
	require.NoError(t, err)
	res := validate(t, InputSchema, raw)
	assert.True(t, res.Valid(), res.Errors())

	var back Input
	require.NoError(t, json.Unmarshal(raw, &back))
	assert.Equal(t, in, back)
}

func TestInputRequiresHistory(t *testing.T) {
	t.Parallel()

	_, err := json.Marshal(&Input{Role: "Architect"})
	require.Error(t, err)

	var in Input
	err = json.Unmarshal([]byte(`{"role":"Architect"}`), &in)
	require.EqualError(t, err, `"history" is required but was not present`)
}

func TestOutputContract(t *testing.T) {
	t.Parallel()

	var out Output
	require.NoError(t, json.Unmarshal([]byte(`{"reply":"Plan ready. [ACTION: ARCHITECT_DESIGN_COMPLETE]"}`), &out))
	assert.Equal(t, "Plan ready. [ACTION: ARCHITECT_DESIGN_COMPLETE]", out.Reply)

	err := json.Unmarshal([]byte(`{"text":"hi"}`), &out)
	require.EqualError(t, err, `"reply" is required but was not present`)

	assert.False(t, validate(t, OutputSchema, []byte(`{"reply":""}`)).Valid())
}
