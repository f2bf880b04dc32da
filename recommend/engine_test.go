package recommend

import (
	"strings"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/liamcoop/chronopulse/features"
)

func newDefaultEngine(t *testing.T) *Engine {
	t.Helper()
	en, err := NewDefaultEngine()
	if err != nil {
		t.Fatalf("NewDefaultEngine() failed: %v", err)
	}
	return en
}

func allMessages() []string {
	rs := DefaultRuleSet()
	out := make([]string, len(rs.Rules))
	for i, r := range rs.Rules {
		out[i] = r.Message
	}
	return out
}

func unhealthy() features.Record {
	return features.Record{
		Age: 40, Gender: "Female", Occupation: "Nurse",
		SleepDuration: 5, QualityOfSleep: 4, PhysicalActivityLevel: 10, StressLevel: 8,
		BMICategory: "Overweight", HeartRate: 95, DailySteps: 2000, SystolicBP: 140, DiastolicBP: 90,
	}
}

func healthy() features.Record {
	return features.Record{
		Age: 35, Gender: "Male", Occupation: "Engineer",
		SleepDuration: 8, QualityOfSleep: 8, PhysicalActivityLevel: 45, StressLevel: 3,
		BMICategory: "Normal", HeartRate: 70, DailySteps: 8000, SystolicBP: 115, DiastolicBP: 75,
	}
}

func TestRecommendAllRulesFireInOrder(t *testing.T) {
	got, err := newDefaultEngine(t).Recommend(unhealthy())
	if err != nil {
		t.Fatalf("Recommend() failed: %v", err)
	}
	if len(got) != 7 {
		t.Fatalf("expected 7 messages, got %d: %v", len(got), got)
	}
	if diff := cmp.Diff(allMessages(), got); diff != "" {
		t.Errorf("messages mismatch (-want +got):\n%s", diff)
	}
}

func TestRecommendHealthyGetsDefaultOnly(t *testing.T) {
	got, err := newDefaultEngine(t).Recommend(healthy())
	if err != nil {
		t.Fatalf("Recommend() failed: %v", err)
	}
	want := []string{DefaultRuleSet().Default}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("messages mismatch (-want +got):\n%s", diff)
	}
}

func TestRecommendThresholdBoundaries(t *testing.T) {
	en := newDefaultEngine(t)
	msgs := allMessages()

	testCases := []struct {
		name   string
		mutate func(*features.Record)
		want   []string
	}{
		{"sleep exactly 7 is fine", func(r *features.Record) { r.SleepDuration = 7 }, nil},
		{"sleep 6.9 is short", func(r *features.Record) { r.SleepDuration = 6.9 }, msgs[0:1]},
		{"quality 6 is fine", func(r *features.Record) { r.QualityOfSleep = 6 }, nil},
		{"quality 5 is poor", func(r *features.Record) { r.QualityOfSleep = 5 }, msgs[1:2]},
		{"stress 6 is fine", func(r *features.Record) { r.StressLevel = 6 }, nil},
		{"stress 7 is high", func(r *features.Record) { r.StressLevel = 7 }, msgs[2:3]},
		{"activity 30 is fine", func(r *features.Record) { r.PhysicalActivityLevel = 30 }, nil},
		{"activity 29 is low", func(r *features.Record) { r.PhysicalActivityLevel = 29 }, msgs[3:4]},
		{"steps 5000 is fine", func(r *features.Record) { r.DailySteps = 5000 }, nil},
		{"steps 4999 is low", func(r *features.Record) { r.DailySteps = 4999 }, msgs[4:5]},
		{"heart rate 90 is fine", func(r *features.Record) { r.HeartRate = 90 }, nil},
		{"heart rate 91 is elevated", func(r *features.Record) { r.HeartRate = 91 }, msgs[5:6]},
		{"systolic 130 is fine", func(r *features.Record) { r.SystolicBP = 130 }, nil},
		{"systolic 131 only", func(r *features.Record) { r.SystolicBP = 131 }, msgs[6:7]},
		{"diastolic 86 only", func(r *features.Record) { r.DiastolicBP = 86 }, msgs[6:7]},
		{"both pressures count once", func(r *features.Record) { r.SystolicBP, r.DiastolicBP = 150, 95 }, msgs[6:7]},
		{"sleep and steps keep order", func(r *features.Record) { r.DailySteps, r.SleepDuration = 100, 3 }, []string{msgs[0], msgs[4]}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			rec := healthy()
			tc.mutate(&rec)
			got, err := en.Recommend(rec)
			require.NoError(t, err)

			want := tc.want
			if want == nil {
				want = []string{DefaultRuleSet().Default}
			}
			assert.Equal(t, want, got)
		})
	}
}

func TestRecommendIgnoresCategoricalFields(t *testing.T) {
	en := newDefaultEngine(t)
	base, err := en.Recommend(healthy())
	require.NoError(t, err)

	rec := healthy()
	rec.Gender, rec.Occupation, rec.BMICategory = "Female", "Astronaut", "Obese"
	got, err := en.Recommend(rec)
	require.NoError(t, err)
	assert.Equal(t, base, got)
}

func TestRecommendConcurrentUse(t *testing.T) {
	en := newDefaultEngine(t)
	want := allMessages()

	var wg sync.WaitGroup
	errs := make(chan string, 50)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := en.Recommend(unhealthy())
			if err != nil {
				errs <- err.Error()
				return
			}
			if !cmp.Equal(want, got) {
				errs <- cmp.Diff(want, got)
			}
		}()
	}
	wg.Wait()
	close(errs)
	for e := range errs {
		t.Error(e)
	}
}

func TestEvaluateReportsEveryRule(t *testing.T) {
	en := newDefaultEngine(t)
	results, err := en.Evaluate(healthy())
	require.NoError(t, err)
	require.Len(t, results, len(DefaultRuleSet().Rules))

	for i, r := range en.Rules() {
		assert.Equal(t, r.ID, results[i].RuleID)
		assert.Equal(t, r.Name, results[i].RuleName)
		assert.False(t, results[i].Matched, r.ID)
	}
}

func TestLoadRuleSetFromFile(t *testing.T) {
	rs, err := LoadRuleSet("testdata/rules.yaml")
	require.NoError(t, err)
	require.Len(t, rs.Rules, 3)
	assert.Equal(t, "Nothing to report", rs.Default)

	en, err := NewEngine(rs)
	require.NoError(t, err)

	got, err := en.Recommend(unhealthy())
	require.NoError(t, err)
	assert.Equal(t, []string{
		"Sleep is well below the recommended range",
		"Shift work and stress often combine; consider a fixed sleep window",
	}, got)

	got, err = en.Recommend(healthy())
	require.NoError(t, err)
	assert.Equal(t, []string{"Nothing to report"}, got)
}

func TestLoadRuleSetMissingFile(t *testing.T) {
	_, err := LoadRuleSet("testdata/does-not-exist.yaml")
	assert.Error(t, err)
}

func TestNewEngineRejectsNonBooleanExpression(t *testing.T) {
	rs, err := LoadRuleSet("testdata/invalid_type.yaml")
	require.NoError(t, err)

	_, err = NewEngine(rs)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not_bool")
	assert.Contains(t, err.Error(), "must evaluate to bool")
}

func TestNewEngineRejectsInvalidRuleSets(t *testing.T) {
	valid := Rule{ID: "ok", Name: "ok", Expression: "true", Message: "m"}

	testCases := []struct {
		name    string
		rs      RuleSet
		wantErr string
	}{
		{"missing default", RuleSet{Rules: []Rule{valid}}, "default message"},
		{"empty id", RuleSet{Default: "d", Rules: []Rule{{Expression: "true", Message: "m"}}}, "cannot be empty"},
		{"id with dash", RuleSet{Default: "d", Rules: []Rule{{ID: "bad-id", Expression: "true", Message: "m"}}}, "must match pattern"},
		{"id too long", RuleSet{Default: "d", Rules: []Rule{{ID: strings.Repeat("a", 101), Expression: "true", Message: "m"}}}, "exceeds maximum"},
		{"duplicate id", RuleSet{Default: "d", Rules: []Rule{valid, valid}}, "used twice"},
		{"empty expression", RuleSet{Default: "d", Rules: []Rule{{ID: "x", Message: "m"}}}, "no expression"},
		{"empty message", RuleSet{Default: "d", Rules: []Rule{{ID: "x", Expression: "true"}}}, "no message"},
		{"undeclared variable", RuleSet{Default: "d", Rules: []Rule{{ID: "x", Expression: "weight > 100", Message: "m"}}}, "compile error"},
		{"syntax error", RuleSet{Default: "d", Rules: []Rule{{ID: "x", Expression: "age >", Message: "m"}}}, "compile error"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewEngine(tc.rs)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.wantErr)
		})
	}
}

func TestEmptyRuleListAlwaysDefaults(t *testing.T) {
	en, err := NewEngine(RuleSet{Default: "fine"})
	require.NoError(t, err)

	got, err := en.Recommend(unhealthy())
	require.NoError(t, err)
	assert.Equal(t, []string{"fine"}, got)
}
