// Package catalog загружает каталог программы лояльности: уровни, задания,
// награды, достижения и справочные данные о системе.
package catalog

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/mmeshcher/base-loyalty/internal/model"
	"github.com/mmeshcher/base-loyalty/internal/tier"
)

//go:embed default.yaml
var defaultCatalog []byte

// ErrInvalidCatalog возвращается при нарушении правил каталога.
var ErrInvalidCatalog = errors.New("invalid catalog")

// TierSpec описывает уровень в файле каталога.
type TierSpec struct {
	Name      string `yaml:"name"`
	Threshold int64  `yaml:"threshold"`
	BadgeID   string `yaml:"badge_id"`
	URI       string `yaml:"uri"`
}

// TaskSpec описывает задание в файле каталога.
type TaskSpec struct {
	ID          string        `yaml:"id"`
	Name        string        `yaml:"name"`
	Description string        `yaml:"description"`
	Points      int64         `yaml:"points"`
	Cooldown    time.Duration `yaml:"cooldown"`
	Hold        time.Duration `yaml:"hold"`
}

// RewardSpec описывает награду в файле каталога.
type RewardSpec struct {
	ID          int64  `yaml:"id"`
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	Type        string `yaml:"type"`
	Rarity      string `yaml:"rarity"`
	Cost        int64  `yaml:"cost"`
	Stock       int64  `yaml:"stock"`
}

// MilestoneSpec описывает достижение в файле каталога.
type MilestoneSpec struct {
	Name     string `yaml:"name"`
	Lifetime int64  `yaml:"lifetime"`
}

// Contract описывает смарт-контракт программы.
type Contract struct {
	Name     string `yaml:"name" json:"name"`
	Standard string `yaml:"standard" json:"standard"`
	Symbol   string `yaml:"symbol,omitempty" json:"symbol,omitempty"`
	Address  string `yaml:"address" json:"address"`
}

// Network описывает сеть, в которой работает программа.
type Network struct {
	ID       int64  `yaml:"id" json:"id"`
	Name     string `yaml:"name" json:"name"`
	RPCURL   string `yaml:"rpc_url" json:"rpc_url"`
	Explorer string `yaml:"explorer" json:"explorer"`
}

// SystemInfo содержит справочные данные для вкладки системной информации.
type SystemInfo struct {
	Wallet struct {
		Provider string   `yaml:"provider" json:"provider"`
		Networks []string `yaml:"networks" json:"networks"`
	} `yaml:"wallet" json:"wallet"`
	Identity struct {
		Basename        string `yaml:"basename" json:"basename"`
		RegistryAddress string `yaml:"registry_address" json:"registry_address"`
	} `yaml:"identity" json:"identity"`
	Contracts     []Contract `yaml:"contracts" json:"contracts"`
	Networks      []Network  `yaml:"networks" json:"networks"`
	Methods       []string   `yaml:"methods" json:"methods"`
	WebhookEvents []string   `yaml:"webhook_events" json:"webhook_events"`
}

// File повторяет структуру YAML-файла каталога.
type File struct {
	Tiers      []TierSpec      `yaml:"tiers"`
	Tasks      []TaskSpec      `yaml:"tasks"`
	Rewards    []RewardSpec    `yaml:"rewards"`
	Milestones []MilestoneSpec `yaml:"milestones"`
	System     SystemInfo      `yaml:"system"`
}

// Catalog содержит проверенный каталог программы.
type Catalog struct {
	Ladder     *tier.Ladder
	Tasks      []model.Task
	Rewards    []model.Reward
	Milestones []model.Milestone
	System     SystemInfo
}

// Default возвращает встроенный каталог.
func Default() (*Catalog, error) {
	return Parse(defaultCatalog)
}

// Load читает каталог из файла; пустой путь означает встроенный каталог.
func Load(path string) (*Catalog, error) {
	if path == "" {
		return Default()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	return Parse(data)
}

// Parse разбирает и проверяет каталог в формате YAML.
func Parse(data []byte) (*Catalog, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("decode catalog: %w", err)
	}
	return f.build()
}

func (f File) build() (*Catalog, error) {
	tiers := make([]model.Tier, 0, len(f.Tiers))
	for _, t := range f.Tiers {
		tiers = append(tiers, model.Tier{
			Name:      model.TierName(t.Name),
			Threshold: t.Threshold,
			BadgeID:   t.BadgeID,
			URI:       t.URI,
		})
	}
	ladder, err := tier.NewLadder(tiers)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidCatalog, err)
	}

	c := &Catalog{Ladder: ladder, System: f.System}

	taskIDs := make(map[string]struct{}, len(f.Tasks))
	for _, t := range f.Tasks {
		if t.ID == "" {
			return nil, fmt.Errorf("%w: task without id", ErrInvalidCatalog)
		}
		if _, dup := taskIDs[t.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate task %s", ErrInvalidCatalog, t.ID)
		}
		taskIDs[t.ID] = struct{}{}
		if t.Points <= 0 {
			return nil, fmt.Errorf("%w: task %s must reward positive points", ErrInvalidCatalog, t.ID)
		}
		if t.Cooldown < 0 || t.Hold < 0 {
			return nil, fmt.Errorf("%w: task %s has negative duration", ErrInvalidCatalog, t.ID)
		}
		c.Tasks = append(c.Tasks, model.Task{
			ID:          t.ID,
			Name:        t.Name,
			Description: t.Description,
			Points:      t.Points,
			Cooldown:    t.Cooldown,
			Hold:        t.Hold,
		})
	}

	rewardIDs := make(map[int64]struct{}, len(f.Rewards))
	for _, r := range f.Rewards {
		if r.ID <= 0 {
			return nil, fmt.Errorf("%w: reward %q needs positive id", ErrInvalidCatalog, r.Name)
		}
		if _, dup := rewardIDs[r.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate reward %d", ErrInvalidCatalog, r.ID)
		}
		rewardIDs[r.ID] = struct{}{}
		if r.Cost <= 0 || r.Stock < 0 {
			return nil, fmt.Errorf("%w: reward %d needs positive cost and non-negative stock", ErrInvalidCatalog, r.ID)
		}
		if !knownRewardType(model.RewardType(r.Type)) {
			return nil, fmt.Errorf("%w: reward %d has unknown type %q", ErrInvalidCatalog, r.ID, r.Type)
		}
		c.Rewards = append(c.Rewards, model.Reward{
			ID:          r.ID,
			Name:        r.Name,
			Description: r.Description,
			Type:        model.RewardType(r.Type),
			Rarity:      r.Rarity,
			Cost:        r.Cost,
			Stock:       r.Stock,
		})
	}

	for _, m := range f.Milestones {
		if m.Lifetime <= 0 {
			return nil, fmt.Errorf("%w: milestone %q needs positive lifetime", ErrInvalidCatalog, m.Name)
		}
		c.Milestones = append(c.Milestones, model.Milestone{Name: m.Name, Lifetime: m.Lifetime})
	}

	return c, nil
}

func knownRewardType(t model.RewardType) bool {
	switch t {
	case model.RewardTypeNFT, model.RewardTypeToken, model.RewardTypeBadge,
		model.RewardTypeUtility, model.RewardTypePremium, model.RewardTypeDeveloper:
		return true
	}
	return false
}

// Task возвращает задание по идентификатору.
func (c *Catalog) Task(id string) (model.Task, bool) {
	for _, t := range c.Tasks {
		if t.ID == id {
			return t, true
		}
	}
	return model.Task{}, false
}

// MilestonesCrossed возвращает достижения, пройденные при росте накопленных
// очков с before до after.
func (c *Catalog) MilestonesCrossed(before, after int64) []model.Milestone {
	var res []model.Milestone
	for _, m := range c.Milestones {
		if m.Lifetime > before && m.Lifetime <= after {
			res = append(res, m)
		}
	}
	return res
}
