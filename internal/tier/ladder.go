// Package tier реализует лестницу уровней программы лояльности.
package tier

import (
	"errors"
	"fmt"

	"github.com/mmeshcher/base-loyalty/internal/model"
)

var (
	// ErrEmptyLadder возвращается, если не задан ни один уровень.
	ErrEmptyLadder = errors.New("tier ladder is empty")
	// ErrNoBaseTier возвращается, если порог нижнего уровня не равен нулю.
	ErrNoBaseTier = errors.New("lowest tier threshold must be zero")
	// ErrNotIncreasing возвращается, если пороги не возрастают строго.
	ErrNotIncreasing = errors.New("tier thresholds must be strictly increasing")
	// ErrUnknownTier возвращается для уровня, которого нет в лестнице.
	ErrUnknownTier = errors.New("unknown tier")
)

// Ladder хранит упорядоченные по возрастанию порога уровни.
type Ladder struct {
	tiers []model.Tier
}

// Progress описывает положение аккаунта на лестнице уровней.
type Progress struct {
	Current       model.Tier  `json:"current"`
	Next          *model.Tier `json:"next,omitempty"`
	Lifetime      int64       `json:"lifetime"`
	PointsToNext  int64       `json:"points_to_next"`
	NextThreshold int64       `json:"next_threshold,omitempty"`
	Percent       int         `json:"percent"`
}

// NewLadder проверяет уровни и создаёт лестницу. Уровни должны идти в
// порядке строго возрастающих порогов, нижний порог равен нулю.
func NewLadder(tiers []model.Tier) (*Ladder, error) {
	if len(tiers) == 0 {
		return nil, ErrEmptyLadder
	}
	if tiers[0].Threshold != 0 {
		return nil, ErrNoBaseTier
	}

	seen := make(map[model.TierName]struct{}, len(tiers))
	for i, t := range tiers {
		if t.Name == "" {
			return nil, fmt.Errorf("tier %d: empty name", i)
		}
		if _, dup := seen[t.Name]; dup {
			return nil, fmt.Errorf("tier %s: duplicate name", t.Name)
		}
		seen[t.Name] = struct{}{}

		if i > 0 && t.Threshold <= tiers[i-1].Threshold {
			return nil, fmt.Errorf("%w: %s (%d) after %s (%d)",
				ErrNotIncreasing, t.Name, t.Threshold, tiers[i-1].Name, tiers[i-1].Threshold)
		}
	}

	cp := make([]model.Tier, len(tiers))
	copy(cp, tiers)
	return &Ladder{tiers: cp}, nil
}

// Tiers возвращает копию уровней лестницы.
func (l *Ladder) Tiers() []model.Tier {
	cp := make([]model.Tier, len(l.tiers))
	copy(cp, l.tiers)
	return cp
}

// Resolve возвращает старший уровень, порог которого не превышает lifetime.
func (l *Ladder) Resolve(lifetime int64) model.Tier {
	return l.tiers[l.index(lifetime)]
}

func (l *Ladder) index(lifetime int64) int {
	idx := 0
	for i, t := range l.tiers {
		if t.Threshold > lifetime {
			break
		}
		idx = i
	}
	return idx
}

// Lookup возвращает уровень по названию.
func (l *Ladder) Lookup(name model.TierName) (model.Tier, error) {
	for _, t := range l.tiers {
		if t.Name == name {
			return t, nil
		}
	}
	return model.Tier{}, fmt.Errorf("%w: %s", ErrUnknownTier, name)
}

// Compare сравнивает уровни: -1 если a ниже b, 0 если равны, 1 если выше.
func (l *Ladder) Compare(a, b model.TierName) (int, error) {
	ia, ib := -1, -1
	for i, t := range l.tiers {
		if t.Name == a {
			ia = i
		}
		if t.Name == b {
			ib = i
		}
	}
	if ia < 0 {
		return 0, fmt.Errorf("%w: %s", ErrUnknownTier, a)
	}
	if ib < 0 {
		return 0, fmt.Errorf("%w: %s", ErrUnknownTier, b)
	}
	switch {
	case ia < ib:
		return -1, nil
	case ia > ib:
		return 1, nil
	}
	return 0, nil
}

// Crossed возвращает уровни, пороги которых были пройдены при росте
// накопленных очков с before до after, в порядке возрастания.
func (l *Ladder) Crossed(before, after int64) []model.Tier {
	if after <= before {
		return nil
	}
	var res []model.Tier
	for _, t := range l.tiers {
		if t.Threshold > before && t.Threshold <= after {
			res = append(res, t)
		}
	}
	return res
}

// Progress возвращает прогресс до следующего уровня.
func (l *Ladder) Progress(lifetime int64) Progress {
	idx := l.index(lifetime)
	p := Progress{
		Current:  l.tiers[idx],
		Lifetime: lifetime,
		Percent:  100,
	}
	if idx+1 >= len(l.tiers) {
		return p
	}

	next := l.tiers[idx+1]
	p.Next = &next
	p.NextThreshold = next.Threshold
	p.PointsToNext = next.Threshold - lifetime
	if next.Threshold > 0 {
		p.Percent = int(lifetime * 100 / next.Threshold)
	}
	return p
}
