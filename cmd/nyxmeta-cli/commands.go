package main

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"

	"nyxmeta/internal/meta"
	metagrpc "nyxmeta/internal/meta/grpc"
	regionpkg "nyxmeta/internal/region"
	api "nyxmeta/pkg/api"
)

type globalOptions struct {
	addr      string
	clusterID uint64
	timeout   time.Duration
}

func newRootCmd() *cobra.Command {
	opts := &globalOptions{}
	root := &cobra.Command{
		Use:   "nyxmeta-cli",
		Short: "Query and exercise a nyxmeta cluster",
		Long: `nyxmeta-cli talks to a meta replica over gRPC. Read commands report
whether the answering replica was the leader; heartbeat sends a report
on behalf of a data node.`,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&opts.addr, "addr", "127.0.0.1:2379", "meta replica gRPC address")
	root.PersistentFlags().Uint64Var(&opts.clusterID, "cluster", 1, "cluster id")
	root.PersistentFlags().DurationVar(&opts.timeout, "timeout", 5*time.Second, "per command timeout")

	root.AddCommand(
		newLeaderCmd(opts),
		newNodesCmd(opts),
		newRegionCmd(opts),
		newRegionsCmd(opts),
		newHeartbeatCmd(opts),
	)
	return root
}

func (o *globalOptions) client() (*metagrpc.Client, error) {
	return metagrpc.NewClient(o.addr, o.clusterID)
}

func (o *globalOptions) context(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return context.WithTimeout(cmd.Context(), o.timeout)
}

func newLeaderCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "leader",
		Short: "Ask which replica currently leads",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, err := opts.client()
			if err != nil {
				return err
			}
			defer client.Close()
			ctx, cancel := opts.context(cmd)
			defer cancel()
			leader, err := client.AskLeader(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "leader id=%d addr=%s\n", leader.ID, leader.Addr)
			return nil
		},
	}
}

func newNodesCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "nodes",
		Short: "List live nodes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, err := opts.client()
			if err != nil {
				return err
			}
			defer client.Close()
			ctx, cancel := opts.context(cmd)
			defer cancel()
			nodes, authoritative, err := client.ListNodes(ctx)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			printAuthority(out, authoritative)
			if len(nodes) == 0 {
				fmt.Fprintln(out, "(no nodes)")
				return nil
			}
			for _, n := range nodes {
				printNode(out, n)
			}
			return nil
		},
	}
}

func newRegionCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "region <id>",
		Short: "Show one region",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := regionpkg.ParseID(args[0])
			if err != nil {
				return err
			}
			client, err := opts.client()
			if err != nil {
				return err
			}
			defer client.Close()
			ctx, cancel := opts.context(cmd)
			defer cancel()
			info, authoritative, err := client.GetRegion(ctx, uint64(id))
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			printAuthority(out, authoritative)
			printRegion(out, info)
			return nil
		},
	}
}

func newRegionsCmd(opts *globalOptions) *cobra.Command {
	var after uint64
	var limit int32
	cmd := &cobra.Command{
		Use:   "regions",
		Short: "List regions in id order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, err := opts.client()
			if err != nil {
				return err
			}
			defer client.Close()
			ctx, cancel := opts.context(cmd)
			defer cancel()
			regions, authoritative, err := client.ListRegions(ctx, after, limit)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			printAuthority(out, authoritative)
			if len(regions) == 0 {
				fmt.Fprintln(out, "(no regions)")
				return nil
			}
			for _, r := range regions {
				printRegion(out, r)
			}
			return nil
		},
	}
	cmd.Flags().Uint64Var(&after, "after", 0, "list regions with an id greater than this")
	cmd.Flags().Int32Var(&limit, "limit", 0, "maximum regions to return (0 for all)")
	return cmd
}

func newHeartbeatCmd(opts *globalOptions) *cobra.Command {
	var (
		nodeID   uint64
		nodeAddr string
		leader   bool
		table    string
		regions  []uint
		attrs    map[string]string
		count    int
		interval time.Duration
	)
	cmd := &cobra.Command{
		Use:   "heartbeat",
		Short: "Send heartbeat reports as a data node",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if nodeID == 0 {
				return fmt.Errorf("--node-id is required")
			}
			if count <= 0 {
				count = 1
			}
			stats := make([]meta.RegionStat, 0, len(regions))
			for _, id := range regions {
				stats = append(stats, meta.RegionStat{RegionID: regionpkg.ID(id), TableName: table})
			}
			out := &lockedWriter{w: cmd.OutOrStdout()}
			reporter, err := metagrpc.NewReporter(metagrpc.ReporterConfig{
				ClusterID: opts.clusterID,
				Peer:      meta.Peer{ID: nodeID, Addr: nodeAddr},
				Targets:   strings.Split(opts.addr, ","),
				Interval:  interval,
				Source: func() *meta.Report {
					return &meta.Report{
						IsLeader: leader,
						Node:     meta.NodeStat{RegionCount: int64(len(stats)), Attrs: attrs},
						Regions:  stats,
					}
				},
				OnInstructions: func(in []meta.Instruction) {
					for _, i := range in {
						fmt.Fprintf(out, "instruction %q\n", string(i))
					}
				},
				Logger: zap.NewNop(),
			})
			if err != nil {
				return err
			}
			ctx, cancel := opts.context(cmd)
			defer cancel()
			done := make(chan error, 1)
			go func() { done <- reporter.Run(ctx) }()

			poll := time.NewTicker(10 * time.Millisecond)
			defer poll.Stop()
			for reporter.Acked() < uint64(count) {
				select {
				case <-poll.C:
				case <-ctx.Done():
					<-done
					return fmt.Errorf("heartbeat: %d of %d acknowledged before timeout", reporter.Acked(), count)
				}
			}
			cancel()
			<-done
			target, _ := reporter.Leader()
			fmt.Fprintf(out, "acknowledged %d report(s) by %s\n", count, target)
			return nil
		},
	}
	cmd.Flags().Uint64Var(&nodeID, "node-id", 0, "reporting node id")
	cmd.Flags().StringVar(&nodeAddr, "node-addr", "127.0.0.1:20160", "reporting node address")
	cmd.Flags().BoolVar(&leader, "leader", false, "report the node as table leader")
	cmd.Flags().StringVar(&table, "table", "default", "table name for reported regions")
	cmd.Flags().UintSliceVar(&regions, "region", nil, "region ids the node leads or hosts")
	cmd.Flags().StringToStringVar(&attrs, "attr", nil, "node attributes as key=value")
	cmd.Flags().IntVar(&count, "count", 1, "reports to send before exiting")
	cmd.Flags().DurationVar(&interval, "interval", 200*time.Millisecond, "report interval")
	return cmd
}

// lockedWriter serializes writes from the reporter's receive loop and the command.
type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (l *lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(p)
}

func printAuthority(out io.Writer, authoritative bool) {
	if !authoritative {
		fmt.Fprintln(out, "# answered by a standby replica; view may be stale")
	}
}

func printNode(out io.Writer, n *api.NodeInfo) {
	peer := n.GetPeer()
	fmt.Fprintf(out, "node=%d addr=%s leader=%t interval=%s regions=%d%s\n",
		peer.GetId(), peer.GetAddr(), n.IsLeader,
		time.Duration(n.ReportIntvMs)*time.Millisecond, len(n.RegionStats), formatAttrs(n.GetNodeStat().GetAttrs()))
}

func printRegion(out io.Writer, r *api.RegionInfo) {
	if r == nil {
		fmt.Fprintln(out, "(not found)")
		return
	}
	leader := "none"
	if r.Leader != nil {
		leader = fmt.Sprintf("%d@%s", r.Leader.Id, r.Leader.Addr)
	}
	fmt.Fprintf(out, "region=%d table=%s leader=%s followers=%d reporters=%d conflict=%t\n",
		r.RegionId, r.TableName, leader, len(r.Followers), len(r.Reporters), r.Conflict)
}

// formatAttrs renders attributes in key order so output is stable.
func formatAttrs(attrs map[string]string) string {
	if len(attrs) == 0 {
		return ""
	}
	keys := maps.Keys(attrs)
	slices.Sort(keys)
	var b strings.Builder
	for _, k := range keys {
		fmt.Fprintf(&b, " %s=%s", k, attrs[k])
	}
	return b.String()
}
