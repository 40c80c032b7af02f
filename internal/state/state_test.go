package state

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	s := New([]Parameter{{Name: "@p1", Value: int64(3)}}, 0)
	assert.Nil(t, s.MaxResultCount)
	assert.True(t, s.Done())

	data, err := s.Argument()
	require.NoError(t, err)
	assert.JSONEq(t, `{"parameters":[{"name":"@p1","value":3}],"returnedResultCount":0}`, string(data))

	capped := New(nil, 5)
	require.NotNil(t, capped.MaxResultCount)
	assert.Equal(t, 5, *capped.MaxResultCount)
	assert.Equal(t, []Parameter{}, capped.Parameters)
}

func TestParse_ServerBody(t *testing.T) {
	body := `{
		"parameters": [{"name": "@p1", "value": 3}],
		"maxResultCount": null,
		"continuationToken": null,
		"partialAggregate": null,
		"previousSourceRecord": {"id": "3", "amount": 2.50, "big": 9007199254740993},
		"results": [{"count": 2}, {"count": 1}],
		"returnedResultCount": 2
	}`
	s, err := Parse([]byte(body))
	require.NoError(t, err)

	assert.True(t, s.Done())
	assert.Nil(t, s.PartialAggregate)
	assert.Nil(t, s.MaxResultCount)
	require.Len(t, s.Results, 2)
	assert.JSONEq(t, `{"count": 2}`, string(s.Results[0]))
	assert.Equal(t, 2, s.ReturnedResultCount)

	prev := s.PreviousSourceRecord.(map[string]any)
	assert.Equal(t, json.Number("2.50"), prev["amount"])
	assert.Equal(t, json.Number("9007199254740993"), prev["big"])
}

func TestParse_Rejects(t *testing.T) {
	for name, body := range map[string]string{
		"not json":       `{`,
		"trailing data":  `{} {}`,
		"negative count": `{"returnedResultCount": -1}`,
		"zero cap":       `{"maxResultCount": 0, "returnedResultCount": 0}`,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(body))
			require.Error(t, err)
		})
	}
}

func TestEncodeDecode_RoundTrip(t *testing.T) {
	s := New([]Parameter{{Name: "@p1", Value: json.Number("3.0")}}, 10)
	s.ContinuationToken = "c100"
	s.PartialAggregate = map[string]any{"count": json.Number("4"), "storeId": "A"}
	s.PreviousSourceRecord = map[string]any{"storeId": "A"}
	s.Results = []json.RawMessage{json.RawMessage(`{"count":1}`)}
	s.ReturnedResultCount = 1

	token, err := Encode(s)
	require.NoError(t, err)
	assert.NotContains(t, token, "results", "closed groups are not carried in the token")

	got, err := Decode(token)
	require.NoError(t, err)
	assert.Equal(t, "c100", got.ContinuationToken)
	assert.Equal(t, 1, got.ReturnedResultCount)
	assert.Equal(t, 10, *got.MaxResultCount)
	assert.Equal(t, map[string]any{"count": json.Number("4"), "storeId": "A"}, got.PartialAggregate)
	assert.Equal(t, json.Number("3.0"), got.Parameters[0].Value)
	assert.Empty(t, got.Results)
}

func TestEncode_RejectsCompletedRun(t *testing.T) {
	_, err := Encode(New(nil, 0))
	require.Error(t, err)
}

func TestDecode_InvalidToken(t *testing.T) {
	for _, token := range []string{"", "not json", `{"returnedResultCount":0}`} {
		_, err := Decode(token)
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrInvalidToken), "token %q", token)
	}
}
