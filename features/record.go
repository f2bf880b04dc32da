package features

// Record holds one subject's measurements as received from a client.
// Categorical fields are matched exactly against the trained category sets.
type Record struct {
	Age                   int     `json:"age"`
	Gender                string  `json:"gender"`
	Occupation            string  `json:"occupation"`
	SleepDuration         float64 `json:"sleep_duration"`
	QualityOfSleep        int     `json:"quality_of_sleep"`
	PhysicalActivityLevel int     `json:"physical_activity_level"`
	StressLevel           int     `json:"stress_level"`
	BMICategory           string  `json:"bmi_category"`
	HeartRate             int     `json:"heart_rate"`
	DailySteps            int     `json:"daily_steps"`
	SystolicBP            int     `json:"systolic_bp"`
	DiastolicBP           int     `json:"diastolic_bp"`
}

// Categorical record fields that a category group may refer to
const (
	FieldGender      = "gender"
	FieldOccupation  = "occupation"
	FieldBMICategory = "bmi_category"
)

// Category returns the value of a categorical field by its JSON name
func (r Record) Category(field string) (string, bool) {
	switch field {
	case FieldGender:
		return r.Gender, true
	case FieldOccupation:
		return r.Occupation, true
	case FieldBMICategory:
		return r.BMICategory, true
	}
	return "", false
}

// Facts returns the record as a map keyed by JSON field name, with integers
// widened to int64 and sleep duration as float64.
func (r Record) Facts() map[string]any {
	return map[string]any{
		"age":                     int64(r.Age),
		"gender":                  r.Gender,
		"occupation":              r.Occupation,
		"sleep_duration":          r.SleepDuration,
		"quality_of_sleep":        int64(r.QualityOfSleep),
		"physical_activity_level": int64(r.PhysicalActivityLevel),
		"stress_level":            int64(r.StressLevel),
		"bmi_category":            r.BMICategory,
		"heart_rate":              int64(r.HeartRate),
		"daily_steps":             int64(r.DailySteps),
		"systolic_bp":             int64(r.SystolicBP),
		"diastolic_bp":            int64(r.DiastolicBP),
	}
}
