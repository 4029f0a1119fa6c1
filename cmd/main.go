package main

import "github.com/todoflow-labs/web-client/internal/app"

func main() {
	app.Run()
}
