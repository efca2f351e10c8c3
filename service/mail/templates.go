package mail

import (
	"fmt"
	"strings"

	errs "OpsFlow/tools/errs"
)

// template bodies use {{key}} placeholders substituted from the job's
// templateData map.
type template struct {
	HTML string
	Text string
}

var templates = map[string]template{
	"welcome": {
		HTML: `<h1>Welcome to OpsFlow, {{name}}!</h1>
<p>Thank you for joining our operations management platform.</p>
<p>Your account has been successfully created.</p>
<a href="{{loginUrl}}">Get Started</a>`,
		Text: `Welcome to OpsFlow, {{name}}! Thank you for joining our operations management platform. Your account has been successfully created. Get started: {{loginUrl}}`,
	},
	"taskAssigned": {
		HTML: `<h2>New Task Assigned</h2>
<p>Hi {{assigneeName}},</p>
<p>You have been assigned a new task: <strong>{{taskTitle}}</strong></p>
<p>Due date: {{dueDate}}</p>
<p>Priority: {{priority}}</p>
<a href="{{taskUrl}}">View Task</a>`,
		Text: `New Task Assigned: {{taskTitle}}. Due: {{dueDate}}. Priority: {{priority}}. View: {{taskUrl}}`,
	},
	"projectCompleted": {
		HTML: `<h2>Project Completed!</h2>
<p>Congratulations! The project "{{projectName}}" has been completed.</p>
<p>Completion date: {{completionDate}}</p>
<a href="{{projectUrl}}">View Project Summary</a>`,
		Text: `Project Completed: {{projectName}}. Completion date: {{completionDate}}. View: {{projectUrl}}`,
	},
	"notification": {
		HTML: `<h2>{{title}}</h2>
<p>{{message}}</p>
<p>Type: {{type}}</p>
<p>Sent: {{timestamp}}</p>`,
		Text: `{{title}}: {{message}} ({{type}}, {{timestamp}})`,
	},
}

// RenderTemplate substitutes the data map into a named template.
// Unknown template names error; unknown placeholders stay as-is.
func RenderTemplate(name string, data map[string]any) (html, text string, err error) {
	tpl, ok := templates[name]
	if !ok {
		return "", "", errs.ErrNotFound.WrapMsg("template not found", "template", name)
	}

	html, text = tpl.HTML, tpl.Text
	for key, val := range data {
		placeholder := "{{" + key + "}}"
		str := fmt.Sprint(val)
		html = strings.ReplaceAll(html, placeholder, str)
		text = strings.ReplaceAll(text, placeholder, str)
	}
	return html, text, nil
}
