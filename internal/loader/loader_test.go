package loader

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	apperrors "healthetl/internal/errors"
	"healthetl/pkg/contracts/domain"
)

const sampleCSV = `Name,Age,Gender,Medical Condition,Date of Admission,Discharge Date,Readmission Status
Alice,45,female,diabetes,2024-01-01,2024-01-03,Yes
Bob,18.0,MALE,asthma,2024-01-02,2024-01-06,No
Carol,,Female,Cancer,2024-01-03,2024-01-09,N/A
`

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestCSVLoaderLoad(t *testing.T) {
	path := writeFile(t, "healthcare_dataset.csv", sampleCSV)

	table, err := NewCSVLoader(path, nil).Load(context.Background())
	require.NoError(t, err)
	require.Equal(t, 3, table.Len())

	assert.Equal(t, []string{"Name", "Age", "Gender", "Medical Condition", "Date of Admission", "Discharge Date", "Readmission Status"}, table.Columns)
	assert.Equal(t, []string{"Name"}, table.ExtraColumns)
	assert.False(t, table.Enriched)

	first := table.Rows[0]
	assert.Equal(t, domain.Some(45), first.Age)
	assert.Equal(t, domain.Some("female"), first.Gender)
	assert.Equal(t, domain.Some("2024-01-01"), first.AdmissionDate)
	assert.Equal(t, []domain.Null[string]{domain.Some("Alice")}, first.Extra)

	assert.Equal(t, domain.Some(18), table.Rows[1].Age, "integral floats are accepted")

	third := table.Rows[2]
	assert.True(t, third.Age.IsNull())
	assert.True(t, third.ReadmissionStatus.IsNull())
	assert.True(t, third.HasMissingSource())
}

func TestCSVLoaderMissingFile(t *testing.T) {
	table, err := NewCSVLoader(filepath.Join(t.TempDir(), "absent.csv"), nil).Load(context.Background())
	assert.Nil(t, table)
	assert.ErrorIs(t, err, ErrSourceNotFound)
}

func TestCSVLoaderErrors(t *testing.T) {
	tests := []struct {
		name     string
		content  string
		wantType apperrors.ErrorType
	}{
		{
			name:     "empty file",
			content:  "",
			wantType: apperrors.ErrTypeSchema,
		},
		{
			name:     "missing required column",
			content:  "Age,Gender\n30,Male\n",
			wantType: apperrors.ErrTypeSchema,
		},
		{
			name:     "non numeric age",
			content:  "Age,Gender,Medical Condition,Date of Admission,Discharge Date,Readmission Status\nforty,Male,Flu,2024-01-01,2024-01-02,No\n",
			wantType: apperrors.ErrTypeParsing,
		},
		{
			name:     "fractional age",
			content:  "Age,Gender,Medical Condition,Date of Admission,Discharge Date,Readmission Status\n40.5,Male,Flu,2024-01-01,2024-01-02,No\n",
			wantType: apperrors.ErrTypeParsing,
		},
		{
			name:     "too many fields",
			content:  "Age,Gender,Medical Condition,Date of Admission,Discharge Date,Readmission Status\n40,Male,Flu,2024-01-01,2024-01-02,No,extra\n",
			wantType: apperrors.ErrTypeParsing,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeFile(t, "data.csv", tt.content)
			_, err := NewCSVLoader(path, nil).Load(context.Background())
			require.Error(t, err)
			assert.Equal(t, tt.wantType, apperrors.TypeOf(err))
			assert.NotErrorIs(t, err, ErrSourceNotFound)
		})
	}
}

func TestCSVLoaderShortRowAndBOM(t *testing.T) {
	content := "\ufeffAge,Gender,Medical Condition,Date of Admission,Discharge Date,Readmission Status\n30,Male,Flu,2024-01-01,2024-01-02\n"
	path := writeFile(t, "data.csv", content)

	table, err := NewCSVLoader(path, nil).Load(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, table.Len())
	assert.Equal(t, domain.ColumnAge, table.Columns[0])
	assert.True(t, table.Rows[0].ReadmissionStatus.IsNull(), "short rows are padded with nulls")
}

func TestIsNullMarker(t *testing.T) {
	for _, v := range []string{"", "NA", "N/A", "n/a", "NaN", "nan", "-NaN", "null", "NULL", "None", "#N/A", "<NA>"} {
		assert.True(t, IsNullMarker(v), v)
	}
	for _, v := range []string{"0", "No", "none", " ", "Unknown"} {
		assert.False(t, IsNullMarker(v), v)
	}
}

func TestExcelLoaderLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "healthcare_dataset.xlsx")

	f := excelize.NewFile()
	sheet := "Admissions"
	require.NoError(t, f.SetSheetName(f.GetSheetName(0), sheet))
	rows := [][]interface{}{
		{"Age", "Gender", "Medical Condition", "Date of Admission", "Discharge Date", "Readmission Status"},
		{"60", "male", "hypertension", "2024-02-01", "2024-02-05", "No"},
		{},
		{"7", "Female", "Asthma", "2024-02-02", "2024-02-03"},
	}
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		if len(row) > 0 {
			require.NoError(t, f.SetSheetRow(sheet, cell, &row))
		}
	}
	require.NoError(t, f.SaveAs(path))
	require.NoError(t, f.Close())

	table, err := New(path, nil).Load(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, table.Len(), "blank rows are skipped")
	assert.Equal(t, domain.Some(60), table.Rows[0].Age)
	assert.Equal(t, domain.Some("hypertension"), table.Rows[0].MedicalCondition)
	assert.True(t, table.Rows[1].ReadmissionStatus.IsNull())
	assert.Empty(t, table.ExtraColumns)
}

func TestExcelLoaderDateCells(t *testing.T) {
	path := filepath.Join(t.TempDir(), "healthcare_dataset.xlsx")

	f := excelize.NewFile()
	sheet := f.GetSheetName(0)
	rows := [][]interface{}{
		{"Age", "Gender", "Medical Condition", "Date of Admission", "Discharge Date", "Readmission Status", "Billing Code"},
		{45, "Female", "Asthma", time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC), time.Date(2024, 2, 5, 0, 0, 0, 0, time.UTC), "Yes", "20240201"},
		{50, "Male", "Flu", "2024-03-01", "20240304", "No", "X1"},
	}
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		require.NoError(t, f.SetSheetRow(sheet, cell, &row))
	}
	require.NoError(t, f.SaveAs(path))
	require.NoError(t, f.Close())

	table, err := NewExcelLoader(path, "", nil).Load(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, table.Len())

	first := table.Rows[0]
	assert.Equal(t, domain.Some(45), first.Age)
	assert.Equal(t, domain.Some("2024-02-01"), first.AdmissionDate)
	assert.Equal(t, domain.Some("2024-02-05"), first.DischargeDate)
	assert.Equal(t, []domain.Null[string]{domain.Some("20240201")}, first.Extra, "only date columns are converted")

	second := table.Rows[1]
	assert.Equal(t, domain.Some("2024-03-01"), second.AdmissionDate)
	assert.Equal(t, domain.Some("20240304"), second.DischargeDate, "text cells are left as written")
}

func TestExcelLoaderMissingFile(t *testing.T) {
	_, err := NewExcelLoader(filepath.Join(t.TempDir(), "absent.xlsx"), "", nil).Load(context.Background())
	assert.ErrorIs(t, err, ErrSourceNotFound)
}

func TestNewPicksLoaderByExtension(t *testing.T) {
	assert.IsType(t, &CSVLoader{}, New("data/healthcare_dataset.csv", nil))
	assert.IsType(t, &ExcelLoader{}, New("data/healthcare_dataset.XLSX", nil))
	assert.Equal(t, "data/healthcare_dataset.csv", New("data/healthcare_dataset.csv", nil).Source())
}
