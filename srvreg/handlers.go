package srvreg

import (
	"context"

	"github.com/ahmadzakiakmal/carbon-ledger/apperr"
	"github.com/ahmadzakiakmal/carbon-ledger/footprint"
	"github.com/ahmadzakiakmal/carbon-ledger/proofing"
	"github.com/ahmadzakiakmal/carbon-ledger/sensorclient"
)

// SetShipmentInformationHandler generates a shipment id and weight
func (sr *ServiceRegistry) SetShipmentInformationHandler(_ context.Context, _ *Request) (map[string]any, error) {
	info := footprint.NewShipmentInformation()
	sr.logger.Info("Generated shipment information", "shipment_id", *info.ShipmentID, "weight", *info.ShipmentWeight)
	return map[string]any{"shipment_information": info}, nil
}

// DefineTemplateHandler creates the footprint document for a new shipment
func (sr *ServiceRegistry) DefineTemplateHandler(_ context.Context, req *Request) (map[string]any, error) {
	var company string
	if _, err := req.decode("company_name", &company, true); err != nil {
		return nil, err
	}
	var info footprint.ShipmentInformation
	if _, err := req.decode("shipment_information", &info, false); err != nil {
		return nil, err
	}

	doc, err := sr.deps.Assembler.CreateTemplate(company, info)
	if err != nil {
		return nil, err
	}
	return map[string]any{"product_footprint": doc}, nil
}

func (req *Request) productFootprint() (*footprint.ProductFootprint, error) {
	var doc footprint.ProductFootprint
	if _, err := req.decode("product_footprint", &doc, true); err != nil {
		return nil, err
	}
	if err := footprint.Validate(&doc); err != nil {
		return nil, err
	}
	return &doc, nil
}

// TransportProcedureHandler appends a transport link, measured by the
// sensor service, to the shipment's chain
func (sr *ServiceRegistry) TransportProcedureHandler(ctx context.Context, req *Request) (map[string]any, error) {
	tocID, err := req.operatorID("tocId")
	if err != nil {
		return nil, err
	}
	doc, err := req.productFootprint()
	if err != nil {
		return nil, err
	}
	var evidence []sensorclient.Evidence
	if _, err := req.decode("sensor_data", &evidence, false); err != nil {
		return nil, err
	}

	data, _ := doc.PrimaryShipment()
	linkID := sr.deps.Chain.NewLinkID()
	ev, err := sr.deps.Sensors.FetchEvidence(ctx, data.ShipmentID, linkID, sensorclient.WorkflowContext{
		ProcessInstanceKey: req.ProcessInstanceKey,
		ActivityID:         req.ElementID,
	})
	if err != nil {
		return nil, err
	}
	evidence = append(evidence, *ev)

	var distance *footprint.Distance
	if km, ok := ev.ActualDistance(); ok {
		distance = &footprint.Distance{Actual: footprint.Float(km)}
	}

	link, err := sr.deps.Chain.AppendLinkWithID(doc, linkID, data.ShipmentID, data.Mass, footprint.TransportOperator(tocID), distance)
	if err != nil {
		return nil, err
	}
	if err := sr.attest(link, footprint.OperatorTransport); err != nil {
		return nil, err
	}

	return map[string]any{
		"product_footprint": doc,
		"sensor_data":       evidence,
	}, nil
}

// HubProcedureHandler appends a hub link to the shipment's chain
func (sr *ServiceRegistry) HubProcedureHandler(_ context.Context, req *Request) (map[string]any, error) {
	hocID, err := req.operatorID("hocId")
	if err != nil {
		return nil, err
	}
	doc, err := req.productFootprint()
	if err != nil {
		return nil, err
	}

	data, _ := doc.PrimaryShipment()
	link, err := sr.deps.Chain.AppendLink(doc, data.ShipmentID, data.Mass, footprint.HubOperator(hocID), nil)
	if err != nil {
		return nil, err
	}
	if err := sr.attest(link, footprint.OperatorHub); err != nil {
		return nil, err
	}
	return map[string]any{"product_footprint": doc}, nil
}

// attest signs the activity of a freshly appended link and journals it
func (sr *ServiceRegistry) attest(link footprint.TCE, kind footprint.OperatorKind) error {
	env, err := sr.deps.Signer.Sign(footprint.ActivityBag(link))
	if err != nil {
		return err
	}
	if err := sr.deps.Journal.Put(link.ShipmentID, footprint.LinkKey(link.TceID), *env); err != nil {
		return err
	}
	sr.deps.Metrics.ObserveLink(kind.String())
	sr.logger.Info("Appended chain link", "kind", kind, "tce_id", link.TceID, "shipment_id", link.ShipmentID,
		"predecessors", len(link.PrevTceIDs))
	return nil
}

// CollectHocTocDataHandler assembles the proofing document
func (sr *ServiceRegistry) CollectHocTocDataHandler(ctx context.Context, req *Request) (map[string]any, error) {
	doc, err := req.productFootprint()
	if err != nil {
		return nil, err
	}
	var evidence []sensorclient.Evidence
	if _, err := req.decode("sensor_data", &evidence, false); err != nil {
		return nil, err
	}

	data, _ := doc.PrimaryShipment()
	activities, err := sr.deps.Journal.List(data.ShipmentID)
	if err != nil {
		return nil, err
	}

	pd, err := proofing.Collect(ctx, sr.deps.Operators, doc, evidence, activities)
	if err != nil {
		return nil, err
	}
	sr.logger.Info("Collected proofing document", "shipment_id", data.ShipmentID,
		"toc_records", len(pd.TocData), "hoc_records", len(pd.HocData), "activities", len(activities))
	return map[string]any{"proofing_document": pd}, nil
}

// SendToProofingHandler runs the proofing round-trip and, once the receipt
// is in, exports the shipment's signed activities
func (sr *ServiceRegistry) SendToProofingHandler(ctx context.Context, req *Request) (map[string]any, error) {
	var pd proofing.Document
	if _, err := req.decode("proofing_document", &pd, true); err != nil {
		return nil, err
	}

	receipt, err := sr.deps.Proofing.Send(ctx, &pd)
	if err != nil {
		return nil, err
	}

	data, _ := pd.ProductFootprint.PrimaryShipment()
	if sr.deps.ActivitiesOutputPath != "" {
		if err := sr.deps.Journal.Export(data.ShipmentID, sr.deps.ActivitiesOutputPath); err != nil {
			return nil, err
		}
	}
	if err := sr.deps.Journal.Discard(data.ShipmentID); err != nil {
		sr.logger.Error("Failed to discard journaled activities", "shipment_id", data.ShipmentID, "err", err)
	}
	return map[string]any{"proof_receipt": receipt}, nil
}

// VerifyReceiptHandler streams the stored receipt to the verifier
func (sr *ServiceRegistry) VerifyReceiptHandler(ctx context.Context, req *Request) (map[string]any, error) {
	path := sr.deps.ReceiptPath
	if _, err := req.decode("receipt_path", &path, false); err != nil {
		return nil, err
	}
	if path == "" {
		return nil, apperr.Validation("RECEIPT_PATH_MISSING", "No receipt file configured", nil)
	}

	result, err := sr.deps.Verifier.VerifyFile(ctx, path)
	if err != nil {
		return nil, err
	}
	return map[string]any{"verification_result": result}, nil
}

// DetermineJobSequenceHandler lists the subprocesses to fan out to
func (sr *ServiceRegistry) DetermineJobSequenceHandler(_ context.Context, _ *Request) (map[string]any, error) {
	seq := append([]string{}, sr.deps.JobSequence...)
	if len(seq) == 0 {
		seq = []string{"case_1_with_tsp", "case_2_with_tsp", "case_3_with_tsp"}
	}
	return map[string]any{"subprocess_identifiers": seq}, nil
}

// ChainSummaryHandler summarizes the shipment's chain
func (sr *ServiceRegistry) ChainSummaryHandler(_ context.Context, req *Request) (map[string]any, error) {
	doc, err := req.productFootprint()
	if err != nil {
		return nil, err
	}
	summary, err := footprint.Summarize(doc)
	if err != nil {
		return nil, err
	}
	return map[string]any{"tce_chain_summary": summary}, nil
}
