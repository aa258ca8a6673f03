package main

import (
	"fmt"
	"io"

	"github.com/common-nighthawk/go-figure"
)

func printBanner(w io.Writer) {
	myFigure := figure.NewFigure("MxM", "", true)
	fmt.Fprintln(w, myFigure.String())
}
