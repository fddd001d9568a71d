package pipeline

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/enrich-cli/internal/model"
)

func TestRunTriage_SetsClassification(t *testing.T) {
	pl, m := newTestPipeline()
	product := testProduct()
	product.Brand = ""

	m.anthropic.On("CreateMessage", mock.Anything, instructionsContain("Classify this product record")).
		Return(textResponse(`{
			"product_type": "cordless drill",
			"brand": "Makita",
			"brand_confidence": 0.92,
			"model_number": "DDF485",
			"reasoning": "name carries the Makita model designation"
		}`), nil)

	err := pl.runTriage(context.Background(), product)

	require.NoError(t, err)
	require.NotNil(t, product.Classification)
	assert.Equal(t, "cordless drill", product.Classification.ProductType)
	assert.Equal(t, "DDF485", product.Classification.ModelNumber)
	// A confident classification fills the empty brand.
	assert.Equal(t, "Makita", product.Brand)
	require.NotEmpty(t, product.Log)
	assert.Equal(t, "classifying", product.Log[0].Phase)
}

func TestRunTriage_LowConfidenceLeavesBrandEmpty(t *testing.T) {
	pl, m := newTestPipeline()
	product := testProduct()
	product.Brand = ""

	m.anthropic.On("CreateMessage", mock.Anything, mock.Anything).
		Return(textResponse(`{"product_type": "drill", "brand": "Makita", "brand_confidence": 0.3}`), nil)

	err := pl.runTriage(context.Background(), product)

	require.NoError(t, err)
	assert.Empty(t, product.Brand)
	assert.False(t, product.Classification.BrandConfident(0.7))
}

func TestRunTriage_LLMFailureIsStageFatal(t *testing.T) {
	pl, m := newTestPipeline()
	product := testProduct()

	m.anthropic.On("CreateMessage", mock.Anything, mock.Anything).Return(nil, assert.AnError)

	err := pl.runTriage(context.Background(), product)

	require.Error(t, err)
	assert.Nil(t, product.Classification)
}

func TestBrandConfident(t *testing.T) {
	c := &model.ProductClassification{Brand: "Makita", BrandConfidence: 0.7}
	assert.True(t, c.BrandConfident(0.7))
	assert.False(t, c.BrandConfident(0.8))
	assert.False(t, (&model.ProductClassification{BrandConfidence: 0.9}).BrandConfident(0.7))
	var nilC *model.ProductClassification
	assert.False(t, nilC.BrandConfident(0.7))
}
