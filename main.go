package main

import "github.com/Infopercept/opensearch-sdk-go/cmd"

func main() {
	cmd.Execute()
}
