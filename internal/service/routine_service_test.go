package service

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rotinalab/rotinabot/internal/domain"
	"github.com/rotinalab/rotinabot/internal/storage"
)

const tzSaoPaulo = "America/Sao_Paulo"

type fakeArmer struct {
	armed     []string
	cancelled []string
}

func (a *fakeArmer) Arm(r *domain.Routine) error {
	a.armed = append(a.armed, r.ID)
	return nil
}

func (a *fakeArmer) Cancel(id string) {
	a.cancelled = append(a.cancelled, id)
}

type fakeExtractor struct {
	result *Extraction
}

func (f *fakeExtractor) ExtractRoutine(ctx context.Context, text string, now time.Time) (*Extraction, error) {
	return f.result, nil
}

func testService(t *testing.T, extractor Extractor) (*RoutineService, *fakeArmer) {
	t.Helper()
	st, err := storage.New(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	armer := &fakeArmer{}
	return NewRoutineService(st, armer, extractor, tzSaoPaulo), armer
}

func TestCreatePersistsAndArms(t *testing.T) {
	svc, armer := testService(t, nil)

	r, err := svc.Create(CreateParams{
		OwnerID:   7,
		Message:   "tomar remédio",
		TimeOfDay: "09:00",
		Kind:      domain.KindEveryDay,
		IsTask:    true,
	})
	require.NoError(t, err)
	require.NotEmpty(t, r.ID)
	assert.Equal(t, tzSaoPaulo, r.Timezone)
	assert.Equal(t, domain.StatusActive, r.Status)
	require.NotNil(t, r.NextOccurrenceAt)
	assert.True(t, r.NextOccurrenceAt.After(time.Now().Add(-time.Minute)))
	assert.Equal(t, []string{r.ID}, armer.armed)

	got, err := svc.Get(r.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "tomar remédio", got.Message)
}

func TestCreateValidation(t *testing.T) {
	svc, _ := testService(t, nil)

	cases := map[string]CreateParams{
		"empty message": {OwnerID: 7, TimeOfDay: "09:00", Kind: domain.KindEveryDay},
		"bad time":      {OwnerID: 7, Message: "x", TimeOfDay: "9am", Kind: domain.KindEveryDay},
		"bad timezone":  {OwnerID: 7, Message: "x", TimeOfDay: "09:00", Kind: domain.KindEveryDay, Timezone: "Mars/Olympus"},
		"no weekdays":   {OwnerID: 7, Message: "x", TimeOfDay: "09:00", Kind: domain.KindWeekly},
		"bad month day": {OwnerID: 7, Message: "x", TimeOfDay: "09:00", Kind: domain.KindDayOfMonth, DayOfMonth: 0},
		"bad date":      {OwnerID: 7, Message: "x", TimeOfDay: "09:00", Kind: domain.KindSingleDate, Date: "next week"},
		"past date":     {OwnerID: 7, Message: "x", TimeOfDay: "09:00", Kind: domain.KindSingleDate, Date: "2001-01-01"},
		"unknown kind":  {OwnerID: 7, Message: "x", TimeOfDay: "09:00", Kind: "hourly"},
	}

	for name, p := range cases {
		_, err := svc.Create(p)
		assert.ErrorIs(t, err, domain.ErrInvalidScheduleSpec, name)
	}
}

func TestCreateFromTextMapsExtraction(t *testing.T) {
	ex := &fakeExtractor{result: &Extraction{
		DayOrDate:  "segunda, quarta",
		Time:       "09:00",
		Message:    "ir à academia",
		Type:       "repetitiva",
		Repetition: "semanalmente",
		IsTask:     true,
	}}
	svc, armer := testService(t, ex)

	r, err := svc.CreateFromText(context.Background(), 7, "academia segunda e quarta às 9")
	require.NoError(t, err)
	assert.Equal(t, domain.KindWeekly, r.Kind)
	assert.Equal(t, []time.Weekday{time.Monday, time.Wednesday}, r.Weekdays)
	assert.True(t, r.IsTask)
	assert.Len(t, armer.armed, 1)
}

func TestCreateFromTextMonthly(t *testing.T) {
	ex := &fakeExtractor{result: &Extraction{
		DayOrDate:  "10",
		Time:       "09:00",
		Message:    "pagar aluguel",
		Type:       "repetitiva",
		Repetition: "mensalmente",
		IsTask:     true,
	}}
	svc, _ := testService(t, ex)

	r, err := svc.CreateFromText(context.Background(), 7, "pagar aluguel todo dia 10")
	require.NoError(t, err)
	assert.Equal(t, domain.KindDayOfMonth, r.Kind)
	assert.Equal(t, 10, r.DayOfMonth)
}

func TestCreateFromTextUnknownRepetition(t *testing.T) {
	ex := &fakeExtractor{result: &Extraction{
		DayOrDate:  "",
		Time:       "09:00",
		Message:    "x",
		Type:       "repetitiva",
		Repetition: "de vez em quando",
	}}
	svc, _ := testService(t, ex)

	_, err := svc.CreateFromText(context.Background(), 7, "x")
	assert.ErrorIs(t, err, domain.ErrInvalidScheduleSpec)
}

func TestDeleteChecksOwnership(t *testing.T) {
	svc, armer := testService(t, nil)

	r, err := svc.Create(CreateParams{
		OwnerID: 7, Message: "x", TimeOfDay: "09:00", Kind: domain.KindEveryDay,
	})
	require.NoError(t, err)

	assert.Error(t, svc.Delete(r.ID, 999), "foreign owner must not delete")
	require.NoError(t, svc.Delete(r.ID, 7))
	assert.Equal(t, []string{r.ID}, armer.cancelled)

	got, err := svc.Get(r.ID)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestFormatList(t *testing.T) {
	svc, _ := testService(t, nil)

	assert.Contains(t, svc.FormatList(nil), "não tem rotinas")

	routines := []*domain.Routine{
		{Message: "água", TimeOfDay: "10:00", Kind: domain.KindEveryDay, Status: domain.StatusActive},
		{Message: "aluguel", TimeOfDay: "09:00", Kind: domain.KindDayOfMonth, DayOfMonth: 10, IsTask: true, Status: domain.StatusSuspended},
	}
	out := svc.FormatList(routines)
	assert.Contains(t, out, "água")
	assert.Contains(t, out, "todos os dias")
	assert.Contains(t, out, "todo dia 10")
	assert.Contains(t, out, "(suspensa)")
}
