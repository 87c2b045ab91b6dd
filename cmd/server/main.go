package main

import (
	"os"

	"github.com/sandeepkv93/account-security-service/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
