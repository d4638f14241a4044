// Command resrun loads resource definitions and invokes, inspects, serves
// and publishes them.
package main

func main() {
	Execute()
}
