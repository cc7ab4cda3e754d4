package normalize

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"
	"golang.org/x/text/width"

	"example.com/consolidation/internal/domain"
)

var (
	folder = cases.Fold()
	titler = cases.Title(language.English)
)

// fold canonicalises free text for lookups: compatibility-normalised, full-width
// folded, case-folded, with runs of whitespace collapsed.
func fold(s string) string {
	s = norm.NFKC.String(width.Fold.String(s))
	s = folder.String(s)
	return strings.Join(strings.Fields(s), " ")
}

// NaturalKey canonicalises a source username into the cross-source identity key.
func NaturalKey(raw string) string {
	return fold(raw)
}

var genders = map[string]domain.Gender{
	"m":      domain.GenderMale,
	"male":   domain.GenderMale,
	"man":    domain.GenderMale,
	"男":      domain.GenderMale,
	"男性":     domain.GenderMale,
	"f":      domain.GenderFemale,
	"female": domain.GenderFemale,
	"woman":  domain.GenderFemale,
	"女":      domain.GenderFemale,
	"女性":     domain.GenderFemale,
}

func parseGender(raw string) domain.Gender {
	return genders[fold(raw)]
}

var goals = []struct {
	marker string
	goal   domain.Goal
}{
	{"weight_loss", domain.GoalWeightLoss},
	{"lose weight", domain.GoalWeightLoss},
	{"weight loss", domain.GoalWeightLoss},
	{"减重", domain.GoalWeightLoss},
	{"fat_loss", domain.GoalFatLoss},
	{"减脂", domain.GoalFatLoss},
	{"fat", domain.GoalFatLoss},
	{"muscle", domain.GoalMuscleGain},
	{"增肌", domain.GoalMuscleGain},
	{"strength", domain.GoalMuscleGain},
}

// parseGoal matches on substrings, first match wins.
func parseGoal(raw string) domain.Goal {
	value := fold(raw)
	if value == "" {
		return ""
	}
	for _, g := range goals {
		if strings.Contains(value, g.marker) {
			return g.goal
		}
	}
	return ""
}

var roles = map[string]domain.Role{
	"student": domain.RoleStudent,
	"学员":      domain.RoleStudent,
	"学生":      domain.RoleStudent,
	"coach":   domain.RoleCoach,
	"trainer": domain.RoleCoach,
	"教练":      domain.RoleCoach,
	"admin":   domain.RoleAdmin,
	"管理员":     domain.RoleAdmin,
}

// parseRole leaves blank or unrecognised labels empty; the store applies the
// STUDENT default on insert only.
func parseRole(raw string) domain.Role {
	return roles[fold(raw)]
}

// Survey age buckets resolve to a representative age.
var ageBuckets = map[string]int{
	"15 to 18":     17,
	"19 to 25":     22,
	"26 to 30":     28,
	"30 to 40":     35,
	"40 and above": 45,
}

var exerciseTypes = map[string]string{
	"running":            "Running",
	"run":                "Running",
	"jogging":            "Running",
	"jog":                "Running",
	"walking or jogging": "Running",
	"跑步":                 "Running",
	"慢跑":                 "Running",
	"brisk walking":      "Brisk Walking",
	"快走":                 "Brisk Walking",
	"walking":            "Walking",
	"walk":               "Walking",
	"散步":                 "Walking",
	"步行":                 "Walking",
	"cycling":            "Cycling",
	"biking":             "Cycling",
	"bike":               "Cycling",
	"spinning":           "Cycling",
	"骑行":                 "Cycling",
	"动感单车":               "Cycling",
	"swimming":           "Swimming",
	"swim":               "Swimming",
	"游泳":                 "Swimming",
	"yoga":               "Yoga",
	"瑜伽":                 "Yoga",
	"gym":                "Strength Training",
	"lifting weights":    "Strength Training",
	"weightlifting":      "Strength Training",
	"strength":           "Strength Training",
	"strength training":  "Strength Training",
	"力量训练":               "Strength Training",
	"举重":                 "Strength Training",
	"hiit":               "HIIT",
	"高强度间歇":              "HIIT",
	"zumba":              "Zumba",
	"team sport":         "Team Sport",
	"team sports":        "Team Sport",
	"cardio":             "Cardio",
	"有氧":                 "Cardio",
	"pilates":            "Pilates",
	"普拉提":                "Pilates",
	"dance":              "Dancing",
	"dancing":            "Dancing",
	"舞蹈":                 "Dancing",
	"rowing":             "Rowing",
	"划船":                 "Rowing",
	"basketball":         "Basketball",
	"篮球":                 "Basketball",
}

// CanonicalExerciseType maps a synonym onto the canonical vocabulary. Unknown
// labels are kept, title-cased, rather than rejected.
func CanonicalExerciseType(raw string) string {
	value := fold(raw)
	if value == "" {
		return ""
	}
	if canonical, ok := exerciseTypes[value]; ok {
		return canonical
	}
	return titler.String(value)
}
