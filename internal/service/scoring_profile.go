package service

import (
	"fmt"
	"os"
	"strings"

	"github.com/postpulse/internal/db"
	"gopkg.in/yaml.v3"
)

// ContentRange 为闭区间 [Min, Max]。
type ContentRange struct {
	Min int `yaml:"min" json:"min"`
	Max int `yaml:"max" json:"max"`
}

// Contains 判断数值是否落在区间内。
func (r ContentRange) Contains(v int) bool {
	return v >= r.Min && v <= r.Max
}

// PlatformRanges 描述平台文案长度与标签数量的最佳区间。
type PlatformRanges struct {
	Caption  ContentRange `yaml:"caption" json:"caption"`
	Hashtags ContentRange `yaml:"hashtags" json:"hashtags"`
}

// ScoringProfile 保存各平台的最佳区间，可由 YAML 文件覆盖。
type ScoringProfile struct {
	Default   PlatformRanges            `yaml:"default"`
	Platforms map[string]PlatformRanges `yaml:"platforms"`
}

// DefaultScoringProfile 返回内置的平台区间。
func DefaultScoringProfile() ScoringProfile {
	return ScoringProfile{
		Default: PlatformRanges{
			Caption:  ContentRange{Min: 100, Max: 300},
			Hashtags: ContentRange{Min: 5, Max: 10},
		},
		Platforms: map[string]PlatformRanges{
			db.PlatformInstagram: {
				Caption:  ContentRange{Min: 100, Max: 300},
				Hashtags: ContentRange{Min: 5, Max: 10},
			},
			db.PlatformTikTok: {
				Caption:  ContentRange{Min: 50, Max: 150},
				Hashtags: ContentRange{Min: 3, Max: 5},
			},
			db.PlatformLinkedIn: {
				Caption:  ContentRange{Min: 150, Max: 450},
				Hashtags: ContentRange{Min: 3, Max: 5},
			},
		},
	}
}

// RangesFor 返回平台的区间，未配置的平台使用默认值。
func (p ScoringProfile) RangesFor(platform string) PlatformRanges {
	if ranges, ok := p.Platforms[platform]; ok {
		return ranges
	}
	return p.Default
}

// rangeOverride 与 rangesOverride 记录 YAML 中实际出现的字段，未写出的字段沿用内置值。
type rangeOverride struct {
	Min *int `yaml:"min"`
	Max *int `yaml:"max"`
}

type rangesOverride struct {
	Caption  rangeOverride `yaml:"caption"`
	Hashtags rangeOverride `yaml:"hashtags"`
}

type profileOverride struct {
	Default   rangesOverride            `yaml:"default"`
	Platforms map[string]rangesOverride `yaml:"platforms"`
}

func (o rangeOverride) apply(base ContentRange) ContentRange {
	if o.Min != nil {
		base.Min = *o.Min
	}
	if o.Max != nil {
		base.Max = *o.Max
	}
	return base
}

func (o rangesOverride) apply(base PlatformRanges) PlatformRanges {
	return PlatformRanges{
		Caption:  o.Caption.apply(base.Caption),
		Hashtags: o.Hashtags.apply(base.Hashtags),
	}
}

// LoadScoringProfile 读取 YAML 文件并按字段覆盖内置区间；path 为空时直接返回默认值。
// 文件中新增的平台以（覆盖后的）default 为底。
func LoadScoringProfile(path string) (ScoringProfile, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return DefaultScoringProfile(), nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return DefaultScoringProfile(), fmt.Errorf("read scoring profile: %w", err)
	}
	var override profileOverride
	if err := yaml.Unmarshal(raw, &override); err != nil {
		return DefaultScoringProfile(), fmt.Errorf("parse scoring profile: %w", err)
	}

	profile := DefaultScoringProfile()
	profile.Default = override.Default.apply(profile.Default)
	for platform, ranges := range override.Platforms {
		base, ok := profile.Platforms[platform]
		if !ok {
			base = profile.Default
		}
		profile.Platforms[platform] = ranges.apply(base)
	}

	if err := validateRanges("default", profile.Default); err != nil {
		return DefaultScoringProfile(), err
	}
	for platform, ranges := range profile.Platforms {
		if err := validateRanges(platform, ranges); err != nil {
			return DefaultScoringProfile(), err
		}
	}
	return profile, nil
}

// validateRanges 要求 0 <= Min <= Max 且 Max > 0。
func validateRanges(name string, ranges PlatformRanges) error {
	for _, r := range []struct {
		field string
		rng   ContentRange
	}{{"caption", ranges.Caption}, {"hashtag", ranges.Hashtags}} {
		if r.rng.Min < 0 || r.rng.Max <= 0 || r.rng.Min > r.rng.Max {
			return fmt.Errorf("scoring profile %s: invalid %s range %d-%d", name, r.field, r.rng.Min, r.rng.Max)
		}
	}
	return nil
}
