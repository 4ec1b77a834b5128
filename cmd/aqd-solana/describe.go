package main

import (
	"flag"
	"os"
	"strings"

	"github.com/pkg/errors"

	"github.com/aqd-labs/aqd-solana/pkg/idl"
)

type accountInfo struct {
	Name     string `json:"name"`
	Signer   bool   `json:"signer"`
	Writable bool   `json:"writable"`
	Optional bool   `json:"optional"`
}

type argInfo struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

type instructionInfo struct {
	Name     string        `json:"name"`
	Accounts []accountInfo `json:"accounts"`
	Args     []argInfo     `json:"args"`
	Returns  string        `json:"returns,omitempty"`
}

func describeInstruction(ix *idl.Instruction) instructionInfo {
	info := instructionInfo{
		Name:     ix.Name,
		Accounts: make([]accountInfo, 0, len(ix.Accounts)),
		Args:     make([]argInfo, 0, len(ix.Args)),
	}
	for _, slot := range ix.Accounts {
		info.Accounts = append(info.Accounts, accountInfo{
			Name:     slot.Name,
			Signer:   slot.Signer,
			Writable: slot.Writable,
			Optional: slot.Optional,
		})
	}
	for _, arg := range ix.Args {
		info.Args = append(info.Args, argInfo{Name: arg.Name, Type: arg.Type.String()})
	}
	if ix.Returns != nil {
		info.Returns = ix.Returns.String()
	}
	return info
}

func (i instructionInfo) lines() []string {
	lines := []string{i.Name}

	lines = append(lines, "  accounts:")
	if len(i.Accounts) == 0 {
		lines = append(lines, "    (none)")
	}
	for _, a := range i.Accounts {
		var flags []string
		if a.Signer {
			flags = append(flags, "signer")
		}
		if a.Writable {
			flags = append(flags, "writable")
		}
		if a.Optional {
			flags = append(flags, "optional")
		}

		line := "    " + a.Name
		if len(flags) > 0 {
			line += " (" + strings.Join(flags, ", ") + ")"
		}
		lines = append(lines, line)
	}

	lines = append(lines, "  args:")
	if len(i.Args) == 0 {
		lines = append(lines, "    (none)")
	}
	for _, a := range i.Args {
		lines = append(lines, "    "+a.Name+": "+a.Type)
	}

	if i.Returns != "" {
		lines = append(lines, "  returns: "+i.Returns)
	}
	return lines
}

// describe renders the named instruction, or every instruction when name is
// empty.
func describe(def *idl.Definition, name string) ([]instructionInfo, error) {
	if name != "" {
		ix, err := def.Instruction(name)
		if err != nil {
			return nil, err
		}
		return []instructionInfo{describeInstruction(ix)}, nil
	}

	var infos []instructionInfo
	for _, ix := range def.Instructions() {
		infos = append(infos, describeInstruction(ix))
	}
	return infos, nil
}

// runDescribe reads only the IDL, so it needs no keypair or cluster.
func runDescribe(args []string) error {
	var (
		idlPath     string
		instruction string
		outputJSON  bool
	)

	fs := flag.NewFlagSet("describe", flag.ContinueOnError)
	fs.StringVar(&idlPath, "idl", "", "IDL document")
	fs.StringVar(&instruction, "instruction", "", "instruction name, all when empty")
	fs.BoolVar(&outputJSON, "output-json", false, "print the result as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if idlPath == "" {
		return errors.New("describe requires -idl")
	}
	if fs.NArg() > 0 {
		return errors.Errorf("unexpected arguments %v", fs.Args())
	}

	def, err := idl.LoadFile(idlPath)
	if err != nil {
		return err
	}

	infos, err := describe(def, instruction)
	if err != nil {
		return err
	}

	if outputJSON {
		return printJSON(os.Stdout, infos)
	}

	var lines []string
	for i, info := range infos {
		if i > 0 {
			lines = append(lines, "")
		}
		lines = append(lines, info.lines()...)
	}
	return printLines(os.Stdout, lines...)
}
