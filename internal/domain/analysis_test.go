package domain_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/YoussfAh/X-sub010/internal/domain"
)

func aggregateU1(t *testing.T, svc *domain.Service) *domain.AggregatedUserData {
	t.Helper()
	data, err := svc.AggregateUserData(context.Background(), "U1", "all")
	require.NoError(t, err)
	return data
}

func TestRequestAnalysisForU1WritesOneAuditEntry(t *testing.T) {
	store := newInstrumentedStore()
	seedU1(store)
	completer := &fakeCompleter{response: "You trained three times this week."}
	svc := newService(t, store, completer, time.Second)

	data := aggregateU1(t, svc)
	require.Equal(t, domain.SummaryCounts{TotalWorkouts: 3}, data.Summary)

	result, err := svc.RequestAnalysis(context.Background(), domain.AnalysisInput{
		UserID:   "U1",
		UserData: data,
		Prompt:   "How am I doing?",
	})
	require.NoError(t, err)
	require.Equal(t, "You trained three times this week.", result.Response)
	require.Equal(t, data.Summary, result.DataUsed)
	require.NotEmpty(t, result.AuditID)

	require.Equal(t, 1, completer.callCount())
	require.Equal(t, "How am I doing?", completer.prompt)
	require.Equal(t, domain.AnalysisGeneral, completer.actx.Type)
	require.Same(t, data, completer.actx.UserData)

	entries, err := svc.ListAnalyses(context.Background(), "U1", 0, 0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, result.AuditID, entries[0].ID)
	require.Equal(t, 3, entries[0].DataUsed.TotalWorkouts)
	require.Equal(t, data.Summary, entries[0].DataUsed)
	require.Equal(t, "How am I doing?", entries[0].Prompt)
	require.Equal(t, fixedNow, entries[0].CreatedAt)
}

func TestRequestAnalysisFlagOffIsPermissionDenied(t *testing.T) {
	store := newInstrumentedStore()
	store.PutUser(domain.User{ID: "U2", FeatureFlags: map[domain.FlagName]bool{domain.FlagAIAnalysis: false}})
	completer := &fakeCompleter{response: "unused"}
	svc := newService(t, store, completer, time.Second)

	_, err := svc.RequestAnalysis(context.Background(), domain.AnalysisInput{
		UserID:   "U2",
		UserData: &domain.AggregatedUserData{},
		Prompt:   "prompt",
	})
	require.ErrorIs(t, err, domain.ErrPermissionDenied)
	require.Zero(t, completer.callCount())
	require.Zero(t, store.auditCount(t, "U2"))
}

func TestRequestAnalysisFlagOffWinsOverEmptyPrompt(t *testing.T) {
	store := newInstrumentedStore()
	store.PutUser(domain.User{ID: "U2"})
	svc := newService(t, store, &fakeCompleter{response: "unused"}, time.Second)

	_, err := svc.RequestAnalysis(context.Background(), domain.AnalysisInput{UserID: "U2", UserData: &domain.AggregatedUserData{}})
	require.ErrorIs(t, err, domain.ErrPermissionDenied)
}

func TestRequestAnalysisEmptyPromptIsValidationError(t *testing.T) {
	store := newInstrumentedStore()
	seedU1(store)
	completer := &fakeCompleter{response: "unused"}
	svc := newService(t, store, completer, time.Second)
	data := aggregateU1(t, svc)

	for _, prompt := range []string{"", "   \n\t"} {
		_, err := svc.RequestAnalysis(context.Background(), domain.AnalysisInput{UserID: "U1", UserData: data, Prompt: prompt})
		require.ErrorIs(t, err, domain.ErrValidation)
	}
	require.Zero(t, completer.callCount())
	require.Zero(t, store.auditCount(t, "U1"))
}

func TestRequestAnalysisRejectsInvalidInput(t *testing.T) {
	store := newInstrumentedStore()
	seedU1(store)
	completer := &fakeCompleter{response: "unused"}
	svc := newService(t, store, completer, time.Second)
	data := aggregateU1(t, svc)

	tampered := *data
	tampered.Summary.TotalWorkouts = 10

	foreign := *data
	foreign.User.ID = "someone-else"

	cases := map[string]domain.AnalysisInput{
		"unknown type":       {UserID: "U1", UserData: data, Prompt: "hi", AnalysisType: "astrology"},
		"missing payload":    {UserID: "U1", Prompt: "hi"},
		"summary mismatch":   {UserID: "U1", UserData: &tampered, Prompt: "hi"},
		"other user payload": {UserID: "U1", UserData: &foreign, Prompt: "hi"},
	}
	for name, input := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := svc.RequestAnalysis(context.Background(), input)
			require.ErrorIs(t, err, domain.ErrValidation)
		})
	}
	require.Zero(t, completer.callCount())
}

func TestRequestAnalysisMissingUserIsNotFound(t *testing.T) {
	completer := &fakeCompleter{response: "unused"}
	svc := newService(t, newInstrumentedStore(), completer, time.Second)

	_, err := svc.RequestAnalysis(context.Background(), domain.AnalysisInput{UserID: "ghost", UserData: &domain.AggregatedUserData{}, Prompt: "hi"})
	require.ErrorIs(t, err, domain.ErrNotFound)
	require.Zero(t, completer.callCount())
}

func TestRequestAnalysisUpstreamFailureWritesNoAudit(t *testing.T) {
	store := newInstrumentedStore()
	seedU1(store)
	completer := &fakeCompleter{err: domain.NewUpstreamStatusError(503)}
	svc := newService(t, store, completer, time.Second)
	data := aggregateU1(t, svc)

	_, err := svc.RequestAnalysis(context.Background(), domain.AnalysisInput{UserID: "U1", UserData: data, Prompt: "How am I doing?"})
	require.ErrorIs(t, err, domain.ErrUpstream)

	var upstream *domain.UpstreamError
	require.ErrorAs(t, err, &upstream)
	require.Equal(t, 503, upstream.Status)
	require.Equal(t, 1, completer.callCount())
	require.Zero(t, store.auditCount(t, "U1"))
}

func TestRequestAnalysisSanitizesRawBackendErrors(t *testing.T) {
	store := newInstrumentedStore()
	seedU1(store)
	completer := &fakeCompleter{err: errors.New(`{"error":"quota exceeded for key sk-secret"}`)}
	svc := newService(t, store, completer, time.Second)
	data := aggregateU1(t, svc)

	_, err := svc.RequestAnalysis(context.Background(), domain.AnalysisInput{UserID: "U1", UserData: data, Prompt: "hi"})
	require.ErrorIs(t, err, domain.ErrUpstream)
	require.NotContains(t, err.Error(), "sk-secret")
}

func TestRequestAnalysisEmptyResponseIsUpstreamError(t *testing.T) {
	store := newInstrumentedStore()
	seedU1(store)
	svc := newService(t, store, &fakeCompleter{response: "  "}, time.Second)
	data := aggregateU1(t, svc)

	_, err := svc.RequestAnalysis(context.Background(), domain.AnalysisInput{UserID: "U1", UserData: data, Prompt: "hi"})
	require.ErrorIs(t, err, domain.ErrUpstream)
	require.Zero(t, store.auditCount(t, "U1"))
}

func TestRequestAnalysisTimeoutIsUpstreamError(t *testing.T) {
	store := newInstrumentedStore()
	seedU1(store)
	svc := newService(t, store, &fakeCompleter{block: true}, 20*time.Millisecond)
	data := aggregateU1(t, svc)

	_, err := svc.RequestAnalysis(context.Background(), domain.AnalysisInput{UserID: "U1", UserData: data, Prompt: "hi"})
	var upstream *domain.UpstreamError
	require.ErrorAs(t, err, &upstream)
	require.True(t, upstream.Timeout)
	require.Zero(t, store.auditCount(t, "U1"))
}

func TestRequestAnalysisCallerCancellation(t *testing.T) {
	store := newInstrumentedStore()
	seedU1(store)
	svc := newService(t, store, &fakeCompleter{block: true}, time.Minute)
	data := aggregateU1(t, svc)

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(20*time.Millisecond, cancel)

	_, err := svc.RequestAnalysis(ctx, domain.AnalysisInput{UserID: "U1", UserData: data, Prompt: "hi"})
	require.ErrorIs(t, err, context.Canceled)
	require.Zero(t, store.auditCount(t, "U1"))
}

func TestRequestAnalysisAuditFailureIsReturned(t *testing.T) {
	store := newInstrumentedStore()
	seedU1(store)
	store.appendErr = errStoreDown
	svc := newService(t, store, &fakeCompleter{response: "ok"}, time.Second)
	data := aggregateU1(t, svc)

	_, err := svc.RequestAnalysis(context.Background(), domain.AnalysisInput{UserID: "U1", UserData: data, Prompt: "hi"})
	require.ErrorIs(t, err, errStoreDown)
	require.Equal(t, domain.KindInternal, domain.KindOf(err))
}

func TestConcurrentAnalysesForOneUserAreIndependent(t *testing.T) {
	store := newInstrumentedStore()
	seedU1(store)
	svc := newService(t, store, &fakeCompleter{response: "ok"}, time.Second)
	data := aggregateU1(t, svc)

	const n = 8
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		go func() {
			_, err := svc.RequestAnalysis(context.Background(), domain.AnalysisInput{UserID: "U1", UserData: data, Prompt: "hi"})
			errs <- err
		}()
	}
	for i := 0; i < n; i++ {
		require.NoError(t, <-errs)
	}
	require.Equal(t, n, store.auditCount(t, "U1"))
}

func TestParseAnalysisType(t *testing.T) {
	got, err := domain.ParseAnalysisType("")
	require.NoError(t, err)
	require.Equal(t, domain.AnalysisGeneral, got)

	got, err = domain.ParseAnalysisType(" Nutrition ")
	require.NoError(t, err)
	require.Equal(t, domain.AnalysisNutrition, got)

	_, err = domain.ParseAnalysisType("tarot")
	require.ErrorIs(t, err, domain.ErrValidation)
}
