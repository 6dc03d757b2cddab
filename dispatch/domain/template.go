package domain

import "strings"

// Render substitutes {name}, {mobile} and their double-brace forms.
// Missing values render as empty strings.
func Render(template string, item Item) string {
	if template == "" {
		return ""
	}
	r := strings.NewReplacer(
		"{{name}}", item.Name,
		"{{mobile}}", item.Mobile,
		"{name}", item.Name,
		"{mobile}", item.Mobile,
	)
	return r.Replace(template)
}

// PickTemplate chooses the text for an item: an explicit pass template wins,
// then the item's own message, then the tenant's remembered template.
func PickTemplate(passTemplate string, item Item, remembered string) string {
	if strings.TrimSpace(passTemplate) != "" {
		return passTemplate
	}
	if strings.TrimSpace(item.Message) != "" {
		return item.Message
	}
	return remembered
}
