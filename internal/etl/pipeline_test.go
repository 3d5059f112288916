package etl_test

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"carprep/internal/etl"
	_ "carprep/internal/etl/sources"
)

const carHeader = "model,year,price,transmission,mileage,fuelType,tax,mpg,engineSize\n"

func writeSource(t *testing.T, dir, name, body string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0644))
}

func readOutput(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	return rows
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
}

func runPipeline(t *testing.T, dir string, fallback etl.ImputeFallback) (*etl.RunResult, string, error) {
	t.Helper()
	out := filepath.Join(dir, "cleaned_car_data.csv")
	engine := &etl.Engine{Dest: &etl.CSVFileWriter{Path: out}, Logger: testLogger()}
	res, err := engine.Run(context.Background(), &etl.Job{
		SourceDir:      dir,
		OutputPath:     out,
		ReferenceYear:  2025,
		ImputeFallback: fallback,
		PreviewRows:    5,
	})
	return res, out, err
}

func TestEngine_AudiBMWScenario(t *testing.T) {
	dir := t.TempDir()
	writeSource(t, dir, "audi.csv", carHeader+"A4,2018,15000,Manual,20000,Petrol,150,50,2.0\n")
	writeSource(t, dir, "bmw.csv",
		"model,year,price,transmission,mileage,fuelType,tax,tax(£),mpg,engineSize\n"+
			"3 Series,2015,20000,Automatic,40000,Diesel,,200,,2.0\n")

	res, out, err := runPipeline(t, dir, etl.FallbackFail)
	require.NoError(t, err)
	assert.Equal(t, etl.StatusSuccess, res.Status)
	assert.Equal(t, 2, res.RowsRead)
	assert.Equal(t, 2, res.RowsWritten)
	assert.Equal(t, 1, res.TaxMerged)
	assert.Equal(t, 0, res.DuplicatesRemoved)
	assert.Equal(t, 50.0, res.Medians["mpg"])
	assert.Equal(t, 1, res.Imputed["mpg"])
	assert.Equal(t, 0, res.Imputed["tax"])
	assert.Len(t, res.Preview, 2)

	rows := readOutput(t, out)
	require.Len(t, rows, 3)
	assert.Equal(t, etl.OutputColumns, rows[0])
	assert.Equal(t, []string{"A4", "Manual", "Petrol", "20000", "150", "50", "2", "audi", "7", "15000"}, rows[1])
	assert.Equal(t, []string{"3 Series", "Automatic", "Diesel", "40000", "200", "50", "2", "bmw", "10", "20000"}, rows[2])
}

func TestEngine_RemovesDuplicatesAcrossSources(t *testing.T) {
	dir := t.TempDir()
	row := "A4,2018,15000,Manual,20000,Petrol,150,50,2.0\n"
	writeSource(t, dir, "audi.csv", carHeader+row+row)
	// Same listing under another brand differs in the brand field.
	writeSource(t, dir, "audi_used.csv", carHeader+row)

	res, out, err := runPipeline(t, dir, etl.FallbackFail)
	require.NoError(t, err)
	assert.Equal(t, 3, res.RowsRead)
	assert.Equal(t, 1, res.DuplicatesRemoved)
	assert.Len(t, readOutput(t, out), 3)
}

func TestEngine_ExtraColumnsDoNotHideDuplicates(t *testing.T) {
	dir := t.TempDir()
	writeSource(t, dir, "audi.csv",
		"listing_id,model,year,price,transmission,mileage,fuelType,tax,mpg,engineSize\n"+
			"1001,A4,2018,15000,Manual,20000,Petrol,150,50,2.0\n"+
			"1002,A4,2018,15000,Manual,20000,Petrol,150,50,2.0\n")

	res, out, err := runPipeline(t, dir, etl.FallbackFail)
	require.NoError(t, err)
	assert.Equal(t, 1, res.DuplicatesRemoved)

	rows := readOutput(t, out)
	require.Len(t, rows, 2)
	assert.Equal(t, etl.OutputColumns, rows[0])
	assert.Equal(t, []string{"A4", "Manual", "Petrol", "20000", "150", "50", "2", "audi", "7", "15000"}, rows[1])
}

func TestEngine_MedianComputedBeforeFill(t *testing.T) {
	dir := t.TempDir()
	writeSource(t, dir, "ford.csv", carHeader+
		"Focus,2019,9000,Manual,1000,Petrol,100,40,1.0\n"+
		"Fiesta,2019,8000,Manual,2000,Petrol,200,60,1.0\n"+
		"Kuga,2019,7000,Manual,3000,Petrol,,,1.5\n"+
		"Puma,2019,6000,Manual,4000,Petrol,,,1.0\n")

	res, out, err := runPipeline(t, dir, etl.FallbackFail)
	require.NoError(t, err)
	assert.Equal(t, 150.0, res.Medians["tax"])
	assert.Equal(t, 50.0, res.Medians["mpg"])
	assert.Equal(t, 2, res.Imputed["tax"])

	rows := readOutput(t, out)
	require.Len(t, rows, 5)
	for _, r := range rows[3:] {
		assert.Equal(t, "150", r[4], "tax")
		assert.Equal(t, "50", r[5], "mpg")
	}
}

func TestEngine_ImputeWithoutObservations(t *testing.T) {
	body := carHeader + "Golf,2020,12000,Manual,5000,Petrol,145,,1.5\n"

	t.Run("fail", func(t *testing.T) {
		dir := t.TempDir()
		writeSource(t, dir, "vw.csv", body)
		res, out, err := runPipeline(t, dir, etl.FallbackFail)

		var ie *etl.ImputeError
		require.True(t, errors.As(err, &ie), "got %v", err)
		assert.Equal(t, "mpg", ie.Field)
		assert.Equal(t, etl.StatusError, res.Status)
		assert.NoFileExists(t, out)
	})

	t.Run("zero", func(t *testing.T) {
		dir := t.TempDir()
		writeSource(t, dir, "vw.csv", body)
		_, out, err := runPipeline(t, dir, etl.FallbackZero)
		require.NoError(t, err)
		assert.Equal(t, "0", readOutput(t, out)[1][5])
	})
}

func TestEngine_LoadFailureLeavesOutputUntouched(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "cleaned_car_data.csv")
	require.NoError(t, os.WriteFile(out, []byte("previous\n"), 0644))

	writeSource(t, dir, "audi.csv", carHeader+"A4,2018,15000,Manual,20000,Petrol,150,50,2.0\n")
	writeSource(t, dir, "bmw.csv", carHeader+"X5,2015,20000\n")

	_, _, err := runPipeline(t, dir, etl.FallbackFail)
	var le *etl.LoadError
	require.True(t, errors.As(err, &le), "got %v", err)
	assert.Equal(t, "bmw.csv", le.Source)

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, "previous\n", string(data))
}

func TestEngine_LoadFailureCreatesNoOutput(t *testing.T) {
	dir := t.TempDir()
	writeSource(t, dir, "audi.csv", carHeader+"A4,notayear,15000,Manual,20000,Petrol,150,50,2.0\n")

	_, out, err := runPipeline(t, dir, etl.FallbackFail)
	var le *etl.LoadError
	require.True(t, errors.As(err, &le))
	assert.NoFileExists(t, out)
}

func TestEngine_MissingColumn(t *testing.T) {
	dir := t.TempDir()
	writeSource(t, dir, "audi.csv",
		"model,year,transmission,mileage,fuelType,tax,mpg,engineSize\n"+
			"A4,2018,Manual,20000,Petrol,150,50,2.0\n")

	_, out, err := runPipeline(t, dir, etl.FallbackFail)
	var se *etl.SchemaError
	require.True(t, errors.As(err, &se), "got %v", err)
	assert.Equal(t, "price", se.Field)
	assert.Equal(t, "audi.csv", se.Source)
	assert.NoFileExists(t, out)
}

func TestEngine_NoSources(t *testing.T) {
	_, _, err := runPipeline(t, t.TempDir(), etl.FallbackFail)
	assert.ErrorIs(t, err, etl.ErrNoSources)
}

func TestEngine_RerunIgnoresPreviousOutput(t *testing.T) {
	dir := t.TempDir()
	writeSource(t, dir, "audi.csv", carHeader+"A4,2018,15000,Manual,20000,Petrol,150,50,2.0\n")

	_, _, err := runPipeline(t, dir, etl.FallbackFail)
	require.NoError(t, err)
	res, out, err := runPipeline(t, dir, etl.FallbackFail)
	require.NoError(t, err)
	require.Len(t, res.Sources, 1)
	assert.Equal(t, "audi.csv", res.Sources[0].Name)
	assert.Len(t, readOutput(t, out), 2)
}

func TestEngine_MirrorsAfterOutput(t *testing.T) {
	dir := t.TempDir()
	writeSource(t, dir, "audi.csv", carHeader+"A4,2018,15000,Manual,20000,Petrol,150,50,2.0\n")
	out := filepath.Join(dir, "cleaned_car_data.csv")

	mirror := &recordingDest{}
	engine := &etl.Engine{
		Dest:    &etl.CSVFileWriter{Path: out},
		Mirrors: []etl.Destination{mirror},
		Logger:  testLogger(),
	}
	res, err := engine.Run(context.Background(), &etl.Job{SourceDir: dir, OutputPath: out, ReferenceYear: 2025})
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"recording": 1}, res.Mirrored)
	require.NotNil(t, mirror.got)
	assert.Equal(t, etl.OutputColumns, mirror.got.Schema.FieldNames())

	mirror.err = errors.New("boom")
	res, err = engine.Run(context.Background(), &etl.Job{SourceDir: dir, OutputPath: out, ReferenceYear: 2025})
	assert.Error(t, err)
	assert.Equal(t, etl.StatusError, res.Status)
	assert.FileExists(t, out)
}

type recordingDest struct {
	got *etl.Dataset
	err error
}

func (d *recordingDest) Name() string { return "recording" }

func (d *recordingDest) Write(_ context.Context, ds *etl.Dataset) (int, error) {
	if d.err != nil {
		return 0, d.err
	}
	d.got = ds
	return ds.Len(), nil
}
