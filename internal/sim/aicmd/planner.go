package aicmd

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"unicode"

	"skirmish.ai/internal/sim/geom"
)

var (
	attackWords  = []string{"attack", "capture", "take", "push", "assault", "seize", "rush"}
	defendWords  = []string{"defend", "hold", "guard", "protect", "fortify"}
	retreatWords = []string{"retreat", "fallback", "regroup", "withdraw", "return"}
)

// KeywordPlanner is a deterministic planner that understands a small command
// vocabulary and control point names or ids. It stands in for a language
// model planner and shares its contract.
type KeywordPlanner struct{}

func (KeywordPlanner) Plan(ctx context.Context, req Request, view WorldView) ([]Assignment, string, error) {
	if err := ctx.Err(); err != nil {
		return nil, "", err
	}
	words := tokenize(req.CommandText)
	refs := pointRefs(words, view.Points)

	goal := ""
	switch {
	case containsAny(words, retreatWords):
		goal = GoalRetreat
	case containsAny(words, defendWords):
		goal = GoalDefend
	case containsAny(words, attackWords), len(refs) > 0:
		goal = GoalAttack
	default:
		return nil, "", fmt.Errorf("%w: %q", ErrUnrecognized, strings.TrimSpace(req.CommandText))
	}

	selected := selectUnits(req, view)
	if len(selected) == 0 {
		return nil, "", ErrNoUnits
	}

	var seq []string
	var target *geom.Vec3
	switch goal {
	case GoalAttack:
		seq = refs
		if len(seq) == 0 {
			seq = nearestFirst(view, func(p PointInfo) bool { return p.Owner != view.Team })
		}
		if len(seq) == 0 {
			return nil, "", fmt.Errorf("%w: no point left to attack", ErrUnrecognized)
		}
	case GoalDefend:
		seq = refs
		if len(seq) == 0 {
			seq = nearestFirst(view, func(p PointInfo) bool { return p.Owner == view.Team })
		}
		if len(seq) == 0 {
			return nil, "", fmt.Errorf("%w: no owned point to defend", ErrUnrecognized)
		}
		seq = seq[:1]
	case GoalRetreat:
		base := view.Base
		target = &base
	}

	summary := describe(goal, seq, view.Points)
	out := make([]Assignment, 0, len(selected))
	for _, id := range selected {
		a := Assignment{UnitID: id, Goal: goal, AttackSequence: seq, PlanSummary: summary}
		if target != nil {
			t := *target
			a.MoveTarget = &t
		}
		out = append(out, a)
	}
	return out, fmt.Sprintf("%s with %d units", summary, len(out)), nil
}

func tokenize(s string) []string {
	s = strings.ToLower(s)
	s = strings.ReplaceAll(s, "fall back", "fallback")
	return strings.FieldsFunc(s, func(r rune) bool { return !unicode.IsLetter(r) && !unicode.IsDigit(r) })
}

func containsAny(words, vocab []string) bool {
	for _, w := range words {
		for _, v := range vocab {
			if w == v {
				return true
			}
		}
	}
	return false
}

// pointRefs returns referenced point ids in the order they are mentioned.
func pointRefs(words []string, points []PointInfo) []string {
	var out []string
	seen := map[string]bool{}
	for _, w := range words {
		for _, p := range points {
			if seen[p.ID] {
				continue
			}
			if w == strings.ToLower(p.ID) || (p.Name != "" && w == strings.ToLower(p.Name)) {
				out = append(out, p.ID)
				seen[p.ID] = true
			}
		}
	}
	return out
}

func selectUnits(req Request, view WorldView) []string {
	own := map[string]UnitInfo{}
	var all []string
	for _, u := range view.Units {
		if u.Team != req.Team || u.Static {
			continue
		}
		own[u.ID] = u
		all = append(all, u.ID)
	}
	if len(req.UnitIDs) == 0 {
		return all
	}
	var out []string
	for _, id := range req.UnitIDs {
		if _, ok := own[id]; ok {
			out = append(out, id)
		}
	}
	return out
}

func nearestFirst(view WorldView, keep func(PointInfo) bool) []string {
	var ps []PointInfo
	for _, p := range view.Points {
		if keep(p) {
			ps = append(ps, p)
		}
	}
	sort.SliceStable(ps, func(i, j int) bool {
		di, dj := geom.DistSqXZ(ps[i].Pos, view.Base), geom.DistSqXZ(ps[j].Pos, view.Base)
		if di != dj {
			return di < dj
		}
		return ps[i].ID < ps[j].ID
	})
	out := make([]string, 0, len(ps))
	for _, p := range ps {
		out = append(out, p.ID)
	}
	return out
}

func describe(goal string, seq []string, points []PointInfo) string {
	label := map[string]string{}
	for _, p := range points {
		label[p.ID] = p.ID
		if p.Name != "" {
			label[p.ID] = p.Name
		}
	}
	names := make([]string, 0, len(seq))
	for _, id := range seq {
		names = append(names, label[id])
	}
	switch goal {
	case GoalRetreat:
		return "retreat to base"
	case GoalDefend:
		return "defend " + strings.Join(names, ", ")
	default:
		return "attack " + strings.Join(names, ", then ")
	}
}
