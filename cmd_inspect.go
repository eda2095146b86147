package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/olehluchkiv/enhancer/internal/analyzer"
	"github.com/olehluchkiv/enhancer/internal/classfile"
	"github.com/olehluchkiv/enhancer/internal/classpath"
)

func newInspectCmd(a *app) *cobra.Command {
	var code bool
	cmd := &cobra.Command{
		Use:   "inspect <class>",
		Short: "Show what enhancing a class would do",
		Long: `Load a class from the classpath and print the eligibility verdict, the
superclass chain, the qualifying setters and the persistence accessors.
Nothing is written.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sp, err := classpath.Open(classpath.Split(a.cfg.Classpath), a.logger)
			if err != nil {
				return err
			}
			repo := classpath.NewRepository(sp, a.logger)
			defer func() { _ = repo.Close() }()
			return inspect(cmd.OutOrStdout(), repo, a, args[0], code)
		},
	}
	cmd.Flags().String("classpath", "", "class search path, entries separated by the OS list separator")
	cmd.Flags().Bool("strict", false, "fail when a superclass outside the JDK cannot be loaded")
	cmd.Flags().BoolVar(&code, "code", false, "also disassemble method bodies")
	return cmd
}

func inspect(w io.Writer, repo *classpath.Repository, a *app, name string, code bool) error {
	conv := a.cfg.AnalyzerConventions()
	c, err := repo.Resolve(name)
	if err != nil {
		return err
	}
	v, err := analyzer.NewChecker(repo, conv, a.cfg.Strict, a.logger).Check(c)
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "class   %s\n", c.Name)
	fmt.Fprintf(w, "origin  %s\n", c.Origin)
	fmt.Fprintf(w, "version %d.%d\n", c.File.Major, c.File.Minor)
	fmt.Fprintf(w, "sha256  %s\n", c.Digest)
	if len(v.Chain) > 0 {
		fmt.Fprintf(w, "extends %s\n", strings.Join(v.Chain, " -> "))
	}
	if ifaces := c.InterfaceNames(); len(ifaces) > 0 {
		fmt.Fprintf(w, "implements %s\n", strings.Join(ifaces, ", "))
	}
	switch {
	case v.Eligible:
		fmt.Fprintln(w, "verdict eligible")
	case v.Detail != "":
		fmt.Fprintf(w, "verdict skipped: %s (%s)\n", v.Reason, v.Detail)
	default:
		fmt.Fprintf(w, "verdict skipped: %s\n", v.Reason)
	}

	if c.SuperName() != "" {
		fmt.Fprintln(w, "\nancestors:")
		missing, err := repo.Ancestors(c, func(a *classpath.Class) bool {
			fmt.Fprintf(w, "  %s  %s\n", a.Name, a.Origin)
			return true
		})
		if missing != "" {
			fmt.Fprintf(w, "  %s  (not loaded: %v)\n", missing, err)
		}
	}

	setters, err := analyzer.QualifyingSetters(c.File, conv)
	if err != nil {
		return err
	}
	if len(setters) > 0 {
		fmt.Fprintln(w, "\nsetters:")
	}
	for _, s := range setters {
		state := "untracked"
		if s.Tracked() {
			state = "tracked by " + string(s.TrackedBy)
			if s.Param.IsPrimitive() {
				state += ", primitive " + s.Param.JavaName() + " (fails enhancement)"
			} else if ok, why := s.Rewritable(); !ok {
				state += ", not rewritable (" + why + ")"
			}
		}
		fmt.Fprintf(w, "  %s %s%s  %s\n", s.Method.Access.MethodString(), s.Method.Name, s.Method.Descriptor, state)
	}

	accessors := analyzer.PersistenceAccessors(c.File, conv)
	if len(accessors) > 0 {
		fmt.Fprintln(w, "\naccessors:")
	}
	for _, m := range accessors {
		fmt.Fprintf(w, "  %s %s%s\n", m.Access.MethodString(), m.Name, m.Descriptor)
	}

	if code {
		return disassemble(w, c.File)
	}
	return nil
}

func disassemble(w io.Writer, cf *classfile.ClassFile) error {
	for _, m := range cf.Methods {
		body, err := m.Code(cf.Pool)
		if err != nil {
			return fmt.Errorf("method %s: %w", m.Name, err)
		}
		if body == nil {
			continue
		}
		insns, err := classfile.Decode(body.Bytecode)
		if err != nil {
			return fmt.Errorf("method %s: %w", m.Name, err)
		}
		fmt.Fprintf(w, "\n%s%s (stack %d, locals %d)\n", m.Name, m.Descriptor, body.MaxStack, body.MaxLocals)
		for _, in := range insns {
			fmt.Fprintf(w, "  %4d: %s%s\n", in.Offset, in.Op, operand(cf.Pool, in))
		}
	}
	return nil
}

func operand(p *classfile.ConstantPool, in classfile.Instruction) string {
	switch in.Op {
	case classfile.OpGetfield, classfile.OpPutfield, classfile.OpGetstatic, classfile.OpPutstatic,
		classfile.OpInvokevirtual, classfile.OpInvokespecial, classfile.OpInvokestatic, classfile.OpInvokeinterface:
		owner, name, desc, err := p.MemberRef(in.Index())
		if err != nil {
			return " #?"
		}
		return fmt.Sprintf(" %s.%s:%s", owner, name, desc)
	case classfile.OpLdc, classfile.OpLdcW:
		if s, err := p.StringValue(in.Index()); err == nil {
			return fmt.Sprintf(" %q", s)
		}
	case classfile.OpIfeq, classfile.OpIfne, classfile.OpGoto:
		return fmt.Sprintf(" %d", in.Branch())
	}
	return ""
}
