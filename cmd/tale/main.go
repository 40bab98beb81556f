// Tale runs tick-driven interactive fiction and MUD stories.
package main

func main() {
	Execute()
}
