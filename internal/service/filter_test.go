package service

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/educore-sync/internal/models"
	appErrors "github.com/noah-isme/educore-sync/pkg/errors"
)

func namedRecords(names ...string) []*models.Record {
	records := make([]*models.Record, 0, len(names))
	for i, name := range names {
		records = append(records, &models.Record{
			ID:     string(rune('1' + i)),
			Fields: models.NewFields("name", name),
		})
	}
	return records
}

func TestFilterSearchExample(t *testing.T) {
	records := namedRecords("Ama Owusu", "Kojo Mensah")

	matched, err := Filter(models.StudentSchema, records, "kojo", []string{"name"})
	require.NoError(t, err)
	require.Len(t, matched, 1)
	assert.Same(t, records[1], matched[0])

	all, err := Filter(models.StudentSchema, records, "", []string{"name"})
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Same(t, records[0], all[0])
	assert.Same(t, records[1], all[1])
}

func TestFilterBlankQueryIsIdentity(t *testing.T) {
	records := namedRecords("Ama Owusu", "Kojo Mensah")

	result, err := Filter(models.StudentSchema, records, "   \t", nil)
	require.NoError(t, err)
	assert.Equal(t, records, result)
}

func TestFilterIsIdempotentAndOrderPreserving(t *testing.T) {
	records := namedRecords("Abena Asante", "Kojo Mensah", "Akua Asantewaa", "Yaw Boateng", "Esi ASANTE")

	once, err := Filter(models.StudentSchema, records, "asante", []string{"name"})
	require.NoError(t, err)
	twice, err := Filter(models.StudentSchema, once, "asante", []string{"name"})
	require.NoError(t, err)

	require.Equal(t, once, twice)
	require.Len(t, once, 3)

	// subsequence of the input in the same relative order
	pos := -1
	for _, rec := range once {
		idx := -1
		for i, candidate := range records {
			if candidate == rec {
				idx = i
			}
		}
		require.Greater(t, idx, pos)
		pos = idx
	}
}

func TestFilterDoesNotMutateInput(t *testing.T) {
	records := namedRecords("Ama Owusu", "Kojo Mensah")
	before := []string{records[0].Fields.String("name"), records[1].Fields.String("name")}

	_, err := Filter(models.StudentSchema, records, "AMA", []string{"name"})
	require.NoError(t, err)

	assert.Equal(t, "1", records[0].ID)
	assert.Equal(t, before, []string{records[0].Fields.String("name"), records[1].Fields.String("name")})
}

func TestFilterUsesUnicodeFolding(t *testing.T) {
	records := []*models.Record{
		{ID: "1", Fields: models.NewFields("name", "STRASSE Kwame")},
		{ID: "2", Fields: models.NewFields("name", "Ünal Ödegaard")},
	}

	matched, err := Filter(models.StudentSchema, records, "ünal", []string{"name"})
	require.NoError(t, err)
	require.Len(t, matched, 1)
	assert.Equal(t, "2", matched[0].ID)
}

func TestFilterDefaultAndPseudoFields(t *testing.T) {
	records := []*models.Record{
		{ID: "stu-1", Category: "JHS 1", Fields: models.NewFields("name", "Ama", "course", "Home Economics")},
		{ID: "stu-2", Category: "JHS 2", Fields: models.NewFields("name", "Kojo", "course", "Science")},
	}

	byCourse, err := Filter(models.StudentSchema, records, "economics", nil)
	require.NoError(t, err)
	require.Len(t, byCourse, 1)
	assert.Equal(t, "stu-1", byCourse[0].ID)

	byCategory, err := Filter(models.StudentSchema, records, "jhs 2", []string{"category"})
	require.NoError(t, err)
	require.Len(t, byCategory, 1)
	assert.Equal(t, "stu-2", byCategory[0].ID)
}

func TestFilterUnknownFieldFailsEvenForEmptyQuery(t *testing.T) {
	records := namedRecords("Ama Owusu")

	_, err := Filter(models.StudentSchema, records, "", []string{"name", "favouriteColour"})
	require.Error(t, err)

	var appErr *appErrors.Error
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, appErrors.ErrInvalidField.Code, appErr.Code)
	assert.Equal(t, []string{"favouriteColour"}, appErr.Fields)
}

func TestFilterMatchesListFields(t *testing.T) {
	records := []*models.Record{
		{ID: "t1", Fields: models.NewFields("name", "Mr Asante", "courses", []interface{}{"Mathematics", "ICT"})},
		{ID: "t2", Fields: models.NewFields("name", "Mrs Boateng", "courses", []interface{}{"French"})},
	}

	matched, err := Filter(models.TeacherSchema, records, "ict", []string{"courses"})
	require.NoError(t, err)
	require.Len(t, matched, 1)
	assert.Equal(t, "t1", matched[0].ID)
}
