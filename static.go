package main

import _ "embed"

// indexHTML is the embedded monitor page template.
//
//go:embed web/index.html
var indexHTML string
