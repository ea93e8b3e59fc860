package orchestrator

import (
	"strings"

	"storybook/providers"
)

const subjectOnlyAnalysisPrompt = `Describe the child in the image for a fairy tale illustration.
Cartoon style, soft colors, storybook illustration.
Do NOT include name or story.`

const backgroundAnalysisPrompt = `You are analyzing two images:

IMAGE 1 (first image): This is the BACKGROUND scene/template. DO NOT CHANGE ANYTHING in this image - keep it EXACTLY as is.
IMAGE 2 (second image): This is a REAL PHOTO of a child uploaded by the user. Use THIS child's exact appearance.

Your task:
1. Describe the child from IMAGE 2 in detail (face, hair, clothing, features, pose)
2. Create a SHORT image generation prompt that will:
   - Keep the EXACT background from IMAGE 1 (all colors, objects, animals, text, style - everything stays the same)
   - Replace ONLY the character/person in IMAGE 1 with the child from IMAGE 2
   - The child from IMAGE 2 should be in the same position as the character in IMAGE 1
   - Everything else in IMAGE 1 must remain EXACTLY the same

CRITICAL: The background, colors, objects, animals, text, and style from IMAGE 1 must be PRESERVED EXACTLY. Only the character/person should be replaced with the child from IMAGE 2.

Keep the prompt SHORT (max 300 words). Use simple, clear language.
Output ONLY the image generation prompt, nothing else.`

const replaceChildAnalysisPrompt = `You are analyzing two images:
1. A template illustration from a children's picture book: a scene with a child character, background elements and possibly text.
2. A real photo of a child.

Your task:
- Analyze the template image: describe the scene, composition, colors, style, position of the child, background elements, animals, and text placement.
- Analyze the child photo: describe the child's appearance, facial features, hair color, clothing, pose, and expression.
- Create a detailed prompt for generating a new image that places the child from the photo into the template scene, maintaining the same artistic style, composition, and all elements exactly as in the template, but with the new child replacing the original child in the same position and pose.

The output should be a detailed image generation prompt that will recreate the entire scene with the new child seamlessly integrated.`

// DefaultImageAnalysisPrompt is used for bucket image analysis when the
// caller supplies none.
const DefaultImageAnalysisPrompt = "Describe this image in detail. What do you see? Include colors, objects, people, style, and any text if present."

const (
	characterStyleFallback = "storybook illustration of a fantasy character, cute cartoon style, pastel colors, hand drawn, NOT realistic, safe for children"
	backgroundSuffix       = ", storybook illustration, high quality, seamless integration"
	directQualitySuffix    = ", high quality, detailed, professional illustration, storybook style"
	integrationSuffix      = ", seamless integration"
)

// Mode is the prompt template family.
type Mode int

const (
	SubjectOnly Mode = iota
	WithBackground
)

func (m Mode) String() string {
	if m == WithBackground {
		return "subject+background"
	}
	return "subject-only"
}

// PromptStyle decides how a description becomes an image prompt.
type PromptStyle int

const (
	// StyleIllustration wraps a subject description in the storybook
	// template and cleans background prompts for URL use.
	StyleIllustration PromptStyle = iota
	// StyleDirect uses the description as the image prompt and appends
	// quality keywords.
	StyleDirect
)

// ModeFor selects the template family from the presence of a background.
func ModeFor(hasBackground bool) Mode {
	if hasBackground {
		return WithBackground
	}
	return SubjectOnly
}

// AnalysisPrompt returns the instruction sent with the images to the vision
// model.
func AnalysisPrompt(mode Mode) string {
	if mode == WithBackground {
		return backgroundAnalysisPrompt
	}
	return subjectOnlyAnalysisPrompt
}

// ImagePrompt turns a vision model description into the final synthesis
// prompt. maxDescription caps cleaned background descriptions.
func ImagePrompt(style PromptStyle, mode Mode, description string, maxDescription int) string {
	if style == StyleDirect {
		return directImagePrompt(mode, description)
	}

	if mode == WithBackground {
		cleaned := providers.StripSpecialChars(providers.CollapseWhitespace(description))
		cleaned = truncateAtWord(cleaned, maxDescription)
		return providers.CollapseWhitespace(cleaned + backgroundSuffix)
	}

	return providers.CollapseWhitespace(
		"storybook illustration of a fantasy character,\ninspired by: " + description +
			",\ncute cartoon style, pastel colors,\nhand drawn, NOT realistic, safe for children")
}

func directImagePrompt(mode Mode, description string) string {
	prompt := strings.TrimSpace(description)
	if prompt == "" {
		prompt = characterStyleFallback
	}
	if !strings.Contains(prompt, "high quality") {
		prompt += directQualitySuffix
		if mode == WithBackground {
			prompt += integrationSuffix
		}
	}
	return providers.CollapseWhitespace(prompt)
}

// ReplacementPrompt cleans the template analysis for the primary synthesizer.
func ReplacementPrompt(description string, maxLen int) string {
	return providers.TruncateRunes(providers.CollapseWhitespace(description), maxLen)
}

// truncateAtWord cuts s to maxLen characters, backing up to the last space
// when that keeps at least 80% of the text.
func truncateAtWord(s string, maxLen int) string {
	r := []rune(s)
	if maxLen <= 0 || len(r) <= maxLen {
		return s
	}
	cut := strings.TrimSpace(string(r[:maxLen]))
	if i := strings.LastIndex(cut, " "); i >= 0 && len([]rune(cut[:i])) > maxLen*8/10 {
		cut = strings.TrimSpace(cut[:i])
	}
	return cut
}
