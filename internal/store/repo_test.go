package store_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/arcano/arcano-consultas/internal/domain"
	"github.com/arcano/arcano-consultas/internal/store"
	"github.com/arcano/arcano-consultas/internal/store/storetest"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTarot(id, user string, created time.Time) *domain.TarotConsultation {
	return &domain.TarotConsultation{
		PaidConsultation: domain.PaidConsultation{
			ID:            id,
			UserID:        user,
			Price:         decimal.RequireFromString("5.00"),
			PaymentStatus: domain.ConsultationPending,
			CreatedAt:     created,
		},
		Context:           "vida amorosa",
		Questions:         []string{"Vou casar?", "Quando?"},
		Responses:         []string{},
		NumberOfQuestions: 2,
	}
}

func TestRepoCreateGetList(t *testing.T) {
	ctx := context.Background()
	repo := store.NewRepo[domain.TarotConsultation](storetest.NewDB(t), "tarot consultation")

	now := time.Now().UTC()
	require.NoError(t, repo.Create(ctx, newTarot("t-1", "u-1", now.Add(-time.Hour))))
	require.NoError(t, repo.Create(ctx, newTarot("t-2", "u-1", now)))
	require.NoError(t, repo.Create(ctx, newTarot("t-3", "u-2", now)))

	got, err := repo.Get(ctx, "t-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"Vou casar?", "Quando?"}, got.Questions)
	assert.Equal(t, "5.00", got.Price.StringFixed(2))
	assert.Equal(t, domain.ConsultationPending, got.PaymentStatus)
	assert.Nil(t, got.CompletedAt)

	list, err := repo.ListByUser(ctx, "u-1")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "t-2", list[0].ID)
}

func TestRepoGetUnknownIsNotFound(t *testing.T) {
	repo := store.NewRepo[domain.Oracle](storetest.NewDB(t), "oracle")

	_, err := repo.Get(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}

func TestRepoClaimIsSingleWriter(t *testing.T) {
	ctx := context.Background()
	repo := store.NewRepo[domain.TarotConsultation](storetest.NewDB(t), "tarot consultation")
	require.NoError(t, repo.Create(ctx, newTarot("t-1", "u-1", time.Now())))

	first, err := repo.Claim(ctx, "t-1")
	require.NoError(t, err)
	second, err := repo.Claim(ctx, "t-1")
	require.NoError(t, err)

	assert.True(t, first)
	assert.False(t, second)

	require.NoError(t, repo.Release(ctx, "t-1"))
	again, err := repo.Claim(ctx, "t-1")
	require.NoError(t, err)
	assert.True(t, again)
}

func TestRepoCompleteRequiresClaim(t *testing.T) {
	ctx := context.Background()
	repo := store.NewRepo[domain.TarotConsultation](storetest.NewDB(t), "tarot consultation")
	row := newTarot("t-1", "u-1", time.Now())
	require.NoError(t, repo.Create(ctx, row))

	row.Responses = []string{"sim"}
	err := repo.Complete(ctx, row.ID, row, "responses")
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrConflict))
	assert.Equal(t, domain.ConsultationPending, row.PaymentStatus)
	assert.Nil(t, row.CompletedAt)

	ok, err := repo.Claim(ctx, row.ID)
	require.NoError(t, err)
	require.True(t, ok)
	require.NoError(t, repo.Complete(ctx, row.ID, row, "responses"))
	assert.Equal(t, domain.ConsultationCompleted, row.PaymentStatus)
	assert.NotNil(t, row.CompletedAt)

	stored, err := repo.Get(ctx, row.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ConsultationCompleted, stored.PaymentStatus)
	assert.Equal(t, []string{"sim"}, stored.Responses)
	assert.NotNil(t, stored.CompletedAt)
	assert.Equal(t, "vida amorosa", stored.Context)
}
