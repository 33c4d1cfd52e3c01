package rekognition

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/rekognition"
	"github.com/aws/aws-sdk-go-v2/service/rekognition/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nutrimeal/concept"
)

type mockRekognitionClient struct {
	output *rekognition.DetectLabelsOutput
	err    error
	input  *rekognition.DetectLabelsInput
}

func (m *mockRekognitionClient) DetectLabels(ctx context.Context, in *rekognition.DetectLabelsInput, opts ...func(*rekognition.Options)) (*rekognition.DetectLabelsOutput, error) {
	m.input = in
	return m.output, m.err
}

func label(name string, confidence float32, categories ...string) types.Label {
	l := types.Label{Name: aws.String(name), Confidence: aws.Float32(confidence)}
	for _, c := range categories {
		l.Categories = append(l.Categories, types.LabelCategory{Name: aws.String(c)})
	}
	return l
}

func TestLabelClient_Concepts(t *testing.T) {
	mock := &mockRekognitionClient{output: &rekognition.DetectLabelsOutput{Labels: []types.Label{
		label("Bread", 92, foodCategory),
		label("Table", 88, "Furniture and Furnishings"),
		label("Cheese", 75),
		label("", 99),
	}}}
	client := NewLabelClient(mock, LabelOptions{MinConfidence: 55})

	got, err := client.Concepts(context.Background(), []byte("img"))
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "bread", got[0].Name)
	assert.InDelta(t, 0.92, got[0].Confidence, 0.0001)
	assert.Equal(t, concept.Candidate{Name: "cheese", Confidence: got[1].Confidence}, got[1])

	require.NotNil(t, mock.input)
	assert.Equal(t, []byte("img"), mock.input.Image.Bytes)
	assert.InDelta(t, 55, aws.ToFloat32(mock.input.MinConfidence), 0.0001)
	assert.EqualValues(t, defaultMaxLabels, aws.ToInt32(mock.input.MaxLabels))
}

func TestLabelClient_Error(t *testing.T) {
	client := NewLabelClient(&mockRekognitionClient{err: errors.New("AccessDenied")}, LabelOptions{})
	_, err := client.Concepts(context.Background(), []byte("img"))
	assert.Error(t, err)
}
