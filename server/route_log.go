package server

import (
	"fmt"
	"log"
)

const (
	red        = "\033[31m"
	green      = "\033[32m"
	yellow     = "\033[33m"
	blue       = "\033[34m"
	magenta    = "\033[35m"
	cyan       = "\033[36m"
	gray       = "\033[90m"
	resetColor = "\033[0m"
)

var methodColors = map[string]string{
	"GET":    green,
	"POST":   blue,
	"PUT":    cyan,
	"DELETE": yellow,
	"PATCH":  magenta,
}

func colouredMethod(method string) string {
	paddedMethod := fmt.Sprintf(" %-7s", method)
	if color, ok := methodColors[method]; ok {
		return color + paddedMethod + resetColor
	}
	return gray + paddedMethod + resetColor
}

func logRoute(method, path string) {
	log.Printf("[%-19s] %s\n", colouredMethod(method), path)
}

func logError(method, path, error string) {
	log.Printf("[%-19s] %s %s\n", colouredMethod(method), path, red+error+resetColor)
}
