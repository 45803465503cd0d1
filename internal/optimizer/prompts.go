package optimizer

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/ZhenchongLi/oipromot/internal/domain"
)

// Mode selects the sampling budget for a request.
type Mode string

const (
	// ModeStandard is the default low-temperature, short-budget mode.
	ModeStandard Mode = "standard"
	// ModeThinking raises the token and temperature budget for deeper analysis.
	ModeThinking Mode = "thinking"
)

// Profile is the resolved request configuration for one
// {kind, language, mode} combination.
type Profile struct {
	Temperature float32
	MaxTokens   int
	Template    string
}

type profileKey struct {
	Kind     domain.TurnKind
	Language Language
	Mode     Mode
}

// ProfileSet maps {kind, language, mode} to a request profile.
type ProfileSet struct {
	profiles map[profileKey]Profile
}

// Lookup returns the profile for the given combination.
func (p *ProfileSet) Lookup(kind domain.TurnKind, lang Language, mode Mode) Profile {
	return p.profiles[profileKey{Kind: kind, Language: lang, Mode: mode}]
}

const (
	standardTemperature = 0.1
	standardMaxTokens   = 1500
	thinkingTemperature = 0.3
	thinkingMaxTokens   = 3000
)

const (
	optimizePromptZH = `你是一个需求分析专家，同时也是Excel和Word专家。你的任务是将用户的原始输入转化为清晰、准确的需求描述。

要求：
1. 只描述用户想要什么，不要添加如何实现的建议
2. 使用简洁、专业的语言
3. 保持需求的核心意图
4. 去除冗余信息
5. 确保描述完整且明确
6. 如果涉及Excel或Word功能，准确理解相关术语和需求
7. 输出结果必须以列表形式展示，每个需求点用数字编号

请将以下用户输入转化为清晰的需求描述：`

	optimizePromptEN = `You are a requirement analysis expert and also an Excel and Word expert. Your task is to transform the user's raw input into a clear, accurate requirement description.

Requirements:
1. Only describe what the user wants, do not add suggestions on how to implement
2. Use concise, professional language
3. Maintain the core intent of the requirement
4. Remove redundant information
5. Ensure the description is complete and clear
6. If involving Excel or Word features, accurately understand related terms and requirements
7. Output result must be in list format, with each requirement point numbered

Please transform the following user input into a clear requirement description:`

	optimizePromptDirectZH = `直接转化用户输入为清晰的需求描述。请以列表形式输出，每个需求点用数字编号。只输出最终结果，不要思考过程，不要解释。`

	optimizePromptDirectEN = `Transform the user input directly into a clear requirement description. Output as a list with each requirement point numbered. Output only the final result, no reasoning, no explanation.`

	refinePromptZH = `你是一个需求分析专家，同时也是Excel和Word专家。根据用户的反馈，调整和优化之前的需求描述。

要求：
1. 根据用户反馈调整需求描述
2. 保持专业和简洁
3. 确保调整后的描述更符合用户意图
4. 不要添加实现建议，只描述需求
5. 如果涉及Excel或Word功能，准确理解相关术语和需求
6. 输出结果必须以列表形式展示，每个需求点用数字编号

请提供调整后的需求描述：`

	refinePromptEN = `You are a requirement analysis expert and also an Excel and Word expert. Based on user feedback, adjust and optimize the previous requirement description.

Requirements:
1. Adjust requirement description based on user feedback
2. Keep it professional and concise
3. Ensure the adjusted description better matches user intent
4. Do not add implementation suggestions, only describe requirements
5. If involving Excel or Word features, accurately understand related terms and requirements
6. Output result must be in list format, with each requirement point numbered

Please provide the adjusted requirement description:`
)

// DefaultProfiles returns the compiled-in profile table.
func DefaultProfiles() *ProfileSet {
	set := &ProfileSet{profiles: make(map[profileKey]Profile)}

	add := func(kind domain.TurnKind, lang Language, mode Mode, template string) {
		p := Profile{Temperature: standardTemperature, MaxTokens: standardMaxTokens, Template: template}
		if mode == ModeThinking {
			p.Temperature = thinkingTemperature
			p.MaxTokens = thinkingMaxTokens
		}
		set.profiles[profileKey{Kind: kind, Language: lang, Mode: mode}] = p
	}

	// Standard optimize turns use the short direct prompt; thinking mode
	// unlocks the full expert prompt.
	add(domain.TurnOptimize, LanguageChinese, ModeStandard, optimizePromptDirectZH)
	add(domain.TurnOptimize, LanguageEnglish, ModeStandard, optimizePromptDirectEN)
	add(domain.TurnOptimize, LanguageChinese, ModeThinking, optimizePromptZH)
	add(domain.TurnOptimize, LanguageEnglish, ModeThinking, optimizePromptEN)
	add(domain.TurnRefine, LanguageChinese, ModeStandard, refinePromptZH)
	add(domain.TurnRefine, LanguageEnglish, ModeStandard, refinePromptEN)
	add(domain.TurnRefine, LanguageChinese, ModeThinking, refinePromptZH)
	add(domain.TurnRefine, LanguageEnglish, ModeThinking, refinePromptEN)

	return set
}

// profileOverride is one entry in a YAML profile file.
type profileOverride struct {
	Kind        string  `yaml:"kind"`
	Language    string  `yaml:"language"`
	Mode        string  `yaml:"mode"`
	Temperature float32 `yaml:"temperature"`
	MaxTokens   int     `yaml:"max_tokens"`
	Template    string  `yaml:"template"`
}

type profileFile struct {
	Profiles []profileOverride `yaml:"profiles"`
}

// LoadProfiles returns the default profiles overlaid with entries from a
// YAML file. An empty path returns the defaults untouched.
func LoadProfiles(path string) (*ProfileSet, error) {
	set := DefaultProfiles()
	if path == "" {
		return set, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read prompt profiles: %w", err)
	}

	var file profileFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse prompt profiles: %w", err)
	}

	for i, o := range file.Profiles {
		key := profileKey{
			Kind:     domain.TurnKind(o.Kind),
			Language: Language(o.Language),
			Mode:     Mode(o.Mode),
		}
		base, ok := set.profiles[key]
		if !ok {
			return nil, fmt.Errorf("prompt profile %d: unknown combination %s/%s/%s", i, o.Kind, o.Language, o.Mode)
		}
		if o.Temperature > 0 {
			base.Temperature = o.Temperature
		}
		if o.MaxTokens > 0 {
			base.MaxTokens = o.MaxTokens
		}
		if o.Template != "" {
			base.Template = o.Template
		}
		set.profiles[key] = base
	}

	return set, nil
}
