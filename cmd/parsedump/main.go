// Command parsedump accepts connections on a blocking listener, parses
// each request header section and prints what the parser recorded.
package main

import (
	"flag"
	"fmt"
	"net"

	"github.com/Brownie44l1/edge-http/internal/request"
	"github.com/Brownie44l1/edge-http/internal/response"
)

func main() {
	addr := flag.String("addr", ":42069", "address to listen on")
	limit := flag.Int("max-header", request.DefaultMaxHeaderBytes, "header section size limit")
	flag.Parse()

	listener, err := net.Listen("tcp", *addr)
	if err != nil {
		fmt.Println("Listen error:", err)
		return
	}
	defer listener.Close()
	fmt.Printf("Listening on %s...\n", listener.Addr())

	for {
		conn, err := listener.Accept()
		if err != nil {
			fmt.Println("Accept error:", err)
			continue
		}

		go handleConnection(conn, *limit)
	}
}

func handleConnection(conn net.Conn, limit int) {
	defer conn.Close()

	buf, hdr, err := request.ReadHeader(conn, limit)
	if err != nil {
		fmt.Printf("%s: %v (%d bytes read)\n", conn.RemoteAddr(), err, len(buf))
	} else {
		fmt.Println("Request Line")
		fmt.Printf("Method: %s\n", hdr.MethodBytes(buf))
		fmt.Printf("Path: %s\n", hdr.PathBytes(buf))
		fmt.Printf("Version: %s\n", hdr.ProtocolBytes(buf))

		fmt.Printf("Headers (%d)\n", hdr.FieldCount())
		for _, f := range hdr.Fields {
			if f.IsSeparator {
				continue
			}
			fmt.Printf("%s: %s\n", f.NameBytes(buf), f.ValueBytes(buf))
		}
	}

	conn.Write(response.NoContent)
}
