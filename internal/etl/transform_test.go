package etl_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"carprep/internal/etl"
)

func dataset(names []string, rows ...map[string]any) *etl.Dataset {
	ds := etl.NewDataset(names...)
	for _, r := range rows {
		ds.Records = append(ds.Records, etl.Record{Data: r})
	}
	return ds
}

func TestReconcileStage(t *testing.T) {
	ctx := context.Background()
	in := dataset([]string{"model", "tax", "tax(£)"},
		map[string]any{"model": "A4", "tax": 150.0, "tax(£)": 999.0},
		map[string]any{"model": "X5", "tax": nil, "tax(£)": 200.0},
		map[string]any{"model": "Golf", "tax(£)": nil},
	)

	stage := etl.NewTaxReconcileStage()
	out, err := stage.Apply(ctx, in)
	require.NoError(t, err)

	assert.Equal(t, []string{"model", "tax"}, out.Schema.FieldNames())
	assert.Equal(t, 1, stage.Merged)
	assert.Equal(t, 150.0, out.Records[0].Data["tax"], "canonical value wins")
	assert.Equal(t, 200.0, out.Records[1].Data["tax"])
	v, present := out.Records[2].Data["tax"]
	assert.True(t, present)
	assert.Nil(t, v)
	for _, r := range out.Records {
		assert.NotContains(t, r.Data, "tax(£)")
	}

	// Input is untouched.
	assert.Contains(t, in.Records[1].Data, "tax(£)")
	assert.Nil(t, in.Records[1].Data["tax"])

	// Idempotent.
	again, err := stage.Apply(ctx, out)
	require.NoError(t, err)
	assert.Equal(t, out, again)
	assert.Equal(t, 0, stage.Merged)
}

func TestDedupeStage(t *testing.T) {
	names := []string{"model", "price"}
	in := dataset(names,
		map[string]any{"model": "A4", "price": 15000.0},
		map[string]any{"model": "A4", "price": 15000.0},
		map[string]any{"model": "A4", "price": "15000"},
		map[string]any{"model": "A4", "price": nil},
		map[string]any{"model": "A4"},
		map[string]any{"model": "A4", "price": ""},
	)

	stage := &etl.DedupeStage{}
	out, err := stage.Apply(context.Background(), in)
	require.NoError(t, err)

	// Missing (nil or absent) is one value; text and number never collide.
	assert.Equal(t, 4, out.Len())
	assert.Equal(t, 2, stage.Removed)
	assert.Equal(t, 15000.0, out.Records[0].Data["price"])
	assert.Equal(t, "15000", out.Records[1].Data["price"])
	assert.Len(t, in.Records, 6)
}

func TestImputeStage(t *testing.T) {
	in := dataset([]string{"tax", "mpg"},
		map[string]any{"tax": 10.0, "mpg": 30.0},
		map[string]any{"tax": 30.0, "mpg": nil},
		map[string]any{"tax": nil, "mpg": 40.0},
		map[string]any{"tax": 20.0, "mpg": 50.0},
	)

	stage := etl.NewImputeStage(etl.FallbackFail, testLogger())
	out, err := stage.Apply(context.Background(), in)
	require.NoError(t, err)

	assert.Equal(t, map[string]float64{"tax": 20.0, "mpg": 40.0}, stage.Medians)
	assert.Equal(t, map[string]int{"tax": 1, "mpg": 1}, stage.Filled)
	assert.Equal(t, 40.0, out.Records[1].Data["mpg"])
	assert.Equal(t, 20.0, out.Records[2].Data["tax"])
	assert.Nil(t, in.Records[2].Data["tax"])
}

func TestImputeStage_NoObservations(t *testing.T) {
	in := dataset([]string{"tax", "mpg"}, map[string]any{"tax": nil, "mpg": 40.0})

	_, err := etl.NewImputeStage(etl.FallbackFail, testLogger()).Apply(context.Background(), in)
	var ie *etl.ImputeError
	require.True(t, errors.As(err, &ie))
	assert.Equal(t, "tax", ie.Field)
	assert.EqualError(t, err, "impute: no non-missing values for tax")

	out, err := etl.NewImputeStage(etl.FallbackZero, testLogger()).Apply(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, 0.0, out.Records[0].Data["tax"])
}

func TestCarAgeStage(t *testing.T) {
	in := dataset([]string{"model", "year"},
		map[string]any{"model": "A4", "year": 2018.0},
		map[string]any{"model": "X5", "year": nil},
		map[string]any{"model": "EQ", "year": 2027.0},
	)

	out, err := (&etl.CarAgeStage{ReferenceYear: 2025, Logger: testLogger()}).Apply(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, []string{"model", "car_age"}, out.Schema.FieldNames())
	assert.Equal(t, 7.0, out.Records[0].Data["car_age"])
	assert.Nil(t, out.Records[1].Data["car_age"])
	assert.Equal(t, -2.0, out.Records[2].Data["car_age"], "ages are not bounds-checked")
	assert.NotContains(t, out.Records[0].Data, "year")

	_, err = (&etl.CarAgeStage{ReferenceYear: 2025}).Apply(context.Background(), etl.NewDataset("model"))
	var se *etl.SchemaError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, "year", se.Field)
}

func TestSelectStage(t *testing.T) {
	in := dataset([]string{"extra", "price", "model"},
		map[string]any{"extra": "x", "price": 1.0, "model": "A4"},
	)

	out, err := (&etl.SelectStage{Fields: []string{"model", "price"}}).Apply(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, []string{"model", "price"}, out.Schema.FieldNames())
	assert.Equal(t, map[string]any{"model": "A4", "price": 1.0}, out.Records[0].Data)
}

func TestRequireColumns(t *testing.T) {
	ds := etl.NewDataset(etl.RequiredColumns...)
	assert.NoError(t, etl.RequireColumns(ds, etl.RequiredColumns))

	ds.Schema = ds.Schema.Without("mpg")
	err := etl.RequireColumns(ds, etl.RequiredColumns)
	var se *etl.SchemaError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, "mpg", se.Field)
	assert.Empty(t, se.Source)
}

func TestFormatValue(t *testing.T) {
	assert.Equal(t, "", etl.FormatValue(nil))
	assert.Equal(t, "2018", etl.FormatValue(2018.0))
	assert.Equal(t, "1.6", etl.FormatValue(1.6))
	assert.Equal(t, "55.4", etl.FormatValue(55.4))
	assert.Equal(t, "A4", etl.FormatValue("A4"))
}

func TestFormatPreview(t *testing.T) {
	ds := dataset([]string{"model", "price"},
		map[string]any{"model": "A4", "price": 15000.0},
		map[string]any{"model": "X5", "price": nil},
		map[string]any{"model": "Golf", "price": 9000.0},
	)
	preview := etl.FormatPreview(ds, 2)
	assert.Contains(t, preview, "model")
	assert.Contains(t, preview, "15000")
	assert.Contains(t, preview, "X5")
	assert.NotContains(t, preview, "Golf")
}
