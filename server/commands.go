package server

import (
	"errors"
	"strings"

	"github.com/tidwall/redcon"

	"github.com/patrikhermansson/redis-hnsw/hnsw"
)

type handlerFunc func(s *Server, conn redcon.Conn, args [][]byte) error

// command describes one entry of the command table. arity counts the command
// name itself and is a minimum; maxArgs of 0 means unbounded.
type command struct {
	name    string
	arity   int
	maxArgs int
	write   bool
	handler handlerFunc
}

func (c *command) flags() []string {
	if c.write {
		return []string{"write"}
	}
	return []string{"readonly"}
}

var commandTable = []*command{
	{name: "hnsw.new", arity: 2, maxArgs: 6, write: true, handler: newIndex},
	{name: "hnsw.get", arity: 2, maxArgs: 2, handler: getIndex},
	{name: "hnsw.del", arity: 2, maxArgs: 2, write: true, handler: deleteIndex},
	{name: "hnsw.search", arity: 4, handler: searchKNN},
	{name: "hnsw.node.add", arity: 4, write: true, handler: addNode},
	{name: "hnsw.node.get", arity: 3, maxArgs: 3, handler: getNode},
	{name: "hnsw.node.del", arity: 3, maxArgs: 3, write: true, handler: deleteNode},
	{name: "ping", arity: 1, maxArgs: 2, handler: ping},
	{name: "echo", arity: 2, maxArgs: 2, handler: echo},
	{name: "quit", arity: 1, handler: quit},
	{name: "command", arity: 1, handler: listCommands},
}

func commandMap(table []*command) map[string]*command {
	m := make(map[string]*command, len(table))
	for _, c := range table {
		m[c.name] = c
	}
	return m
}

// hnsw.new name [dim] [m] [ef_construction] [metric]
func newIndex(s *Server, conn redcon.Conn, args [][]byte) error {
	// Omitted arguments take the registry defaults; explicit ones are
	// validated as given.
	p := s.reg.Defaults()
	targets := []*int{&p.Dimension, &p.M, &p.EfConstruction}
	for i, target := range targets {
		if len(args) <= i+2 {
			break
		}
		n, err := parseInt(args[i+2])
		if err != nil {
			return err
		}
		*target = n
	}
	if len(args) > 5 {
		p.Metric = strings.ToLower(string(args[5]))
	}
	if err := hnsw.ValidateParams(p.Dimension, p.M, p.EfConstruction, p.Metric); err != nil {
		return err
	}
	if err := s.reg.NewIndex(string(args[1]), p); err != nil {
		return err
	}
	conn.WriteString("OK")
	return nil
}

// hnsw.get name
func getIndex(s *Server, conn redcon.Conn, args [][]byte) error {
	info, err := s.reg.GetIndex(string(args[1]))
	if err != nil {
		return err
	}
	writeInfo(conn, info)
	return nil
}

// hnsw.del name
func deleteIndex(s *Server, conn redcon.Conn, args [][]byte) error {
	if err := s.reg.DeleteIndex(string(args[1])); err != nil {
		return err
	}
	conn.WriteInt(1)
	return nil
}

// hnsw.search name k v1 .. vn
func searchKNN(s *Server, conn redcon.Conn, args [][]byte) error {
	k, err := parseInt(args[2])
	if err != nil {
		return err
	}
	query, err := parseVector(args[3:])
	if err != nil {
		return err
	}
	results, err := s.reg.Search(string(args[1]), k, query)
	if errors.Is(err, hnsw.ErrIndexEmpty) {
		results, err = nil, nil
	}
	if err != nil {
		return err
	}
	writeResults(conn, results)
	return nil
}

// hnsw.node.add name node v1 .. vn
func addNode(s *Server, conn redcon.Conn, args [][]byte) error {
	vector, err := parseVector(args[3:])
	if err != nil {
		return err
	}
	if err := s.reg.AddNode(string(args[1]), string(args[2]), vector); err != nil {
		return err
	}
	conn.WriteString("OK")
	return nil
}

// hnsw.node.get name node
func getNode(s *Server, conn redcon.Conn, args [][]byte) error {
	rec, err := s.reg.GetNode(string(args[1]), string(args[2]))
	if err != nil {
		return err
	}
	writeNode(conn, rec)
	return nil
}

// hnsw.node.del name node
func deleteNode(s *Server, conn redcon.Conn, args [][]byte) error {
	if err := s.reg.DeleteNode(string(args[1]), string(args[2])); err != nil {
		return err
	}
	conn.WriteInt(1)
	return nil
}

func ping(_ *Server, conn redcon.Conn, args [][]byte) error {
	if len(args) == 2 {
		conn.WriteBulk(args[1])
		return nil
	}
	conn.WriteString("PONG")
	return nil
}

func echo(_ *Server, conn redcon.Conn, args [][]byte) error {
	conn.WriteBulk(args[1])
	return nil
}

func quit(_ *Server, conn redcon.Conn, _ [][]byte) error {
	conn.WriteString("OK")
	_ = conn.Close()
	return nil
}

// listCommands replies with [name, -arity, [flags]] for every command.
func listCommands(s *Server, conn redcon.Conn, _ [][]byte) error {
	conn.WriteArray(len(s.table))
	for _, c := range s.table {
		conn.WriteArray(3)
		conn.WriteBulkString(c.name)
		conn.WriteInt(-c.arity)
		flags := c.flags()
		conn.WriteArray(len(flags))
		for _, f := range flags {
			conn.WriteBulkString(f)
		}
	}
	return nil
}
