package analysis

import (
	"fmt"
	"strings"
	"text/template"
)

const defaultPromptLanguage = "en"

type promptData struct {
	Count    int
	Entities string
	Text     string
}

const schemaBlock = `{"quiz": [{"question": "...", "options": ["...", "...", "...", "..."], "answer": "..."}], "tags": ["..."]}`

var promptTemplates = map[string]*template.Template{
	"en": mustPrompt("en", `You are writing a reading comprehension quiz for a news article.
Write exactly {{.Count}} multiple choice questions about the article below.
Each question has exactly 4 distinct options and the answer must be copied verbatim from the options.
Also return between 1 and 7 short topic tags.{{if .Entities}} Prefer these names as tags when relevant: {{.Entities}}.{{end}}
Return a single JSON object and nothing else, using this schema:
`+schemaBlock+`

Article:
{{.Text}}`),
	"es": mustPrompt("es", `Estás escribiendo un cuestionario de comprensión lectora sobre un artículo de noticias.
Escribe exactamente {{.Count}} preguntas de opción múltiple sobre el artículo siguiente, en español.
Cada pregunta tiene exactamente 4 opciones distintas y la respuesta debe copiarse literalmente de las opciones.
Devuelve también entre 1 y 7 etiquetas temáticas breves.{{if .Entities}} Usa estos nombres como etiquetas cuando sea pertinente: {{.Entities}}.{{end}}
Devuelve un único objeto JSON y nada más, con este esquema:
`+schemaBlock+`

Artículo:
{{.Text}}`),
	"fr": mustPrompt("fr", `Vous rédigez un quiz de compréhension sur un article de presse.
Rédigez exactement {{.Count}} questions à choix multiples sur l'article ci-dessous, en français.
Chaque question a exactement 4 options distinctes et la réponse doit être recopiée mot pour mot parmi les options.
Renvoyez aussi entre 1 et 7 étiquettes thématiques courtes.{{if .Entities}} Utilisez ces noms comme étiquettes si pertinent : {{.Entities}}.{{end}}
Renvoyez un seul objet JSON et rien d'autre, selon ce schéma :
`+schemaBlock+`

Article :
{{.Text}}`),
	"de": mustPrompt("de", `Du erstellst ein Leseverständnis-Quiz zu einem Nachrichtenartikel.
Schreibe genau {{.Count}} Multiple-Choice-Fragen zum folgenden Artikel, auf Deutsch.
Jede Frage hat genau 4 verschiedene Antwortmöglichkeiten, und die Antwort muss wörtlich aus den Möglichkeiten übernommen werden.
Gib außerdem 1 bis 7 kurze Themen-Tags zurück.{{if .Entities}} Verwende diese Namen als Tags, wenn passend: {{.Entities}}.{{end}}
Gib ein einziges JSON-Objekt und sonst nichts zurück, nach diesem Schema:
`+schemaBlock+`

Artikel:
{{.Text}}`),
	"pt": mustPrompt("pt", `Você está escrevendo um questionário de compreensão de leitura sobre uma notícia.
Escreva exatamente {{.Count}} perguntas de múltipla escolha sobre o artigo abaixo, em português.
Cada pergunta tem exatamente 4 opções distintas e a resposta deve ser copiada literalmente das opções.
Retorne também de 1 a 7 etiquetas temáticas curtas.{{if .Entities}} Use estes nomes como etiquetas quando pertinente: {{.Entities}}.{{end}}
Retorne um único objeto JSON e nada mais, com este esquema:
`+schemaBlock+`

Artigo:
{{.Text}}`),
}

func mustPrompt(name, text string) *template.Template {
	return template.Must(template.New(name).Parse(text))
}

// BuildPrompt renders the quiz prompt for a language. Unknown languages use English.
func BuildPrompt(language string, count int, entities []string, text string) (string, error) {
	tmpl, ok := promptTemplates[strings.ToLower(language)]
	if !ok {
		tmpl = promptTemplates[defaultPromptLanguage]
	}

	var sb strings.Builder

	err := tmpl.Execute(&sb, promptData{
		Count:    count,
		Entities: strings.Join(entities, ", "),
		Text:     text,
	})
	if err != nil {
		return "", fmt.Errorf("render %s prompt: %w", tmpl.Name(), err)
	}

	return sb.String(), nil
}
