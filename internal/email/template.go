package email

import (
	"bytes"
	"fmt"
	"html/template"
)

const codeTemplate = `
<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <style>
        body {
            font-family: Arial, sans-serif;
            line-height: 1.6;
            color: #333;
            max-width: 600px;
            margin: 0 auto;
            padding: 20px;
        }
        .header {
            background-color: #004A8F;
            color: white;
            padding: 20px;
            text-align: center;
            border-radius: 5px 5px 0 0;
        }
        .content {
            background-color: #f9f9f9;
            padding: 30px;
            border-radius: 0 0 5px 5px;
        }
        .code {
            font-size: 32px;
            font-weight: bold;
            letter-spacing: 8px;
            text-align: center;
            color: #004A8F;
            margin: 20px 0;
        }
        .footer {
            text-align: center;
            margin-top: 20px;
            font-size: 12px;
            color: #666;
        }
    </style>
</head>
<body>
    <div class="header">
        <h1>SERCOP</h1>
    </div>
    <div class="content">
        <h2>{{.Heading}}</h2>
        <p>Ingresa el siguiente código para verificar tu correo electrónico:</p>
        <p class="code">{{.Code}}</p>
        <p>Si no solicitaste este código, puedes ignorar este mensaje.</p>
    </div>
    <div class="footer">
        <p>Portal de facilitadores SERCOP</p>
    </div>
</body>
</html>
`

var codeTmpl = template.Must(template.New("verification_code").Parse(codeTemplate))

func renderCodeEmail(heading, code string) (string, error) {
	var buf bytes.Buffer
	data := struct {
		Heading string
		Code    string
	}{
		Heading: heading,
		Code:    code,
	}

	if err := codeTmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("execute template: %w", err)
	}

	return buf.String(), nil
}
