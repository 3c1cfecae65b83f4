package goals

// GoalForm is a raw target pair as typed in the goals form.
type GoalForm struct {
	Target    string `json:"target"`
	TargetNew string `json:"target_new"`
}

// Blank reports whether both values were left empty.
func (f GoalForm) Blank() bool { return IsBlank(f.Target) && IsBlank(f.TargetNew) }

// Goal parses the form leniently.
func (f GoalForm) Goal() Goal {
	return Goal{Target: ParseAmount(f.Target), TargetNew: ParseAmount(f.TargetNew)}
}

// SellerGoalForm maps team slug -> seller id -> month key -> submitted values.
type SellerGoalForm map[string]map[int64]map[string]GoalForm

// MergeSellerGoals applies a submitted form to the stored goals. Only official
// members of each team are written; a blank pair removes the month entry.
func MergeSellerGoals(stored SellerGoals, teams Teams, form SellerGoalForm) SellerGoals {
	if stored == nil {
		stored = make(SellerGoals)
	}
	for team, sellers := range form {
		members := teams.Members(team)
		for seller, months := range sellers {
			if _, ok := members[seller]; !ok {
				continue
			}
			for month, values := range months {
				if values.Blank() {
					stored.Delete(team, seller, month)
					continue
				}
				stored.Set(team, seller, month, values.Goal())
			}
		}
	}
	return stored
}

// SetLineGoals replaces the goals of month with the submitted values.
func SetLineGoals(stored LineGoals, month string, form map[string]GoalForm) LineGoals {
	if stored == nil {
		stored = make(LineGoals)
	}
	lines := make(map[string]Goal, len(form))
	for slug, values := range form {
		lines[slug] = values.Goal()
	}
	stored[month] = lines
	return stored
}

// MergeTeams replaces the membership of every submitted team.
func MergeTeams(stored Teams, submitted Teams) Teams {
	if stored == nil {
		stored = make(Teams)
	}
	for team, members := range submitted {
		stored[team] = append([]int64(nil), members...)
	}
	return stored
}
