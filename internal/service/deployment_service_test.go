package service

import (
	"context"
	"fmt"
	"testing"

	"github.com/alanyoungcy/apepipe/internal/domain"
)

func TestDeployApprovedOutcomes(t *testing.T) {
	markets := newFakeMarketStore()
	deployer := newFakeDeployer()
	svc := NewDeploymentService(markets, deployer, nil, nil, nil, testLogger())
	ctx := context.Background()

	for i, id := range []string{"m-confirmed", "m-submitted", "m-failed"} {
		_ = markets.Create(ctx, domain.Market{
			ID:               id,
			Question:         id,
			OriginalMarketID: fmt.Sprintf("0x%d", i),
			Status:           domain.StatusDeploying,
		})
	}
	deployer.receipts["m-confirmed"] = domain.DeployReceipt{MarketID: "42", TxHash: "0xtx1"}
	deployer.receipts["m-submitted"] = domain.DeployReceipt{TxHash: "0xtx2"}
	deployer.errs["m-failed"] = fmt.Errorf("gas estimation: %w", domain.ErrDeployFailed)

	stats, err := svc.DeployApproved(ctx)
	if err != nil {
		t.Fatalf("DeployApproved: %v", err)
	}
	if stats.Deployed != 1 || stats.Submitted != 1 || stats.Failed != 1 {
		t.Errorf("stats = %+v", stats)
	}

	confirmed, _ := markets.GetByID(ctx, "m-confirmed")
	if confirmed.Status != domain.StatusDeployed || confirmed.ApechainMarketID != "42" || confirmed.BlockchainTx != "0xtx1" {
		t.Errorf("confirmed = %+v", confirmed)
	}

	submitted, _ := markets.GetByID(ctx, "m-submitted")
	if submitted.Status != domain.StatusDeploying || submitted.BlockchainTx != "0xtx2" {
		t.Errorf("submitted = %+v", submitted)
	}

	failed, _ := markets.GetByID(ctx, "m-failed")
	if failed.Status != domain.StatusDeploymentFailed {
		t.Errorf("failed = %+v", failed)
	}
	if failed.FailureReason != "gas estimation: "+domain.ErrDeployFailed.Error() {
		t.Errorf("failure reason not persisted: %q", failed.FailureReason)
	}
}

func TestDeployApprovedSkipsSubmitted(t *testing.T) {
	markets := newFakeMarketStore()
	deployer := newFakeDeployer()
	svc := NewDeploymentService(markets, deployer, nil, nil, nil, testLogger())
	ctx := context.Background()

	_ = markets.Create(ctx, domain.Market{
		ID:               "m1",
		OriginalMarketID: "0x1",
		Status:           domain.StatusDeploying,
		BlockchainTx:     "0xpending",
	})

	stats, err := svc.DeployApproved(ctx)
	if err != nil {
		t.Fatalf("DeployApproved: %v", err)
	}
	if stats.Deployed+stats.Submitted+stats.Failed != 0 {
		t.Errorf("already-submitted market was re-deployed: %+v", stats)
	}
}

func TestTrackSubmitted(t *testing.T) {
	markets := newFakeMarketStore()
	deployer := newFakeDeployer()
	svc := NewDeploymentService(markets, deployer, nil, nil, nil, testLogger())
	ctx := context.Background()

	seed := []struct {
		id, tx string
	}{
		{"m-resolved", "0xtx1"},
		{"m-mining", "0xtx2"},
		{"m-reverted", "0xtx3"},
	}
	for i, s := range seed {
		_ = markets.Create(ctx, domain.Market{
			ID:               s.id,
			OriginalMarketID: fmt.Sprintf("0x%d", i),
			Status:           domain.StatusDeploying,
			BlockchainTx:     s.tx,
		})
	}
	deployer.resolve["0xtx1"] = "77"
	deployer.resolveE["0xtx3"] = fmt.Errorf("tx reverted: %w", domain.ErrDeployFailed)

	stats, err := svc.TrackSubmitted(ctx)
	if err != nil {
		t.Fatalf("TrackSubmitted: %v", err)
	}
	if stats.Deployed != 1 || stats.Failed != 1 {
		t.Errorf("stats = %+v", stats)
	}

	resolved, _ := markets.GetByID(ctx, "m-resolved")
	if resolved.Status != domain.StatusDeployed || resolved.ApechainMarketID != "77" {
		t.Errorf("resolved = %+v", resolved)
	}
	mining, _ := markets.GetByID(ctx, "m-mining")
	if mining.Status != domain.StatusDeploying {
		t.Errorf("mining = %+v", mining)
	}
	reverted, _ := markets.GetByID(ctx, "m-reverted")
	if reverted.Status != domain.StatusDeploymentFailed {
		t.Errorf("reverted = %+v", reverted)
	}
	if reverted.FailureReason != "tx reverted: "+domain.ErrDeployFailed.Error() {
		t.Errorf("failure reason not persisted: %q", reverted.FailureReason)
	}
	if reverted.BlockchainTx != "0xtx3" {
		t.Errorf("tx hash lost on failure: %q", reverted.BlockchainTx)
	}
}
