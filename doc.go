/*
Package convoflow is a flow execution engine for chat bots.

A bot owns flows: directed graphs of typed nodes (messages, buttons, lists,
inputs, conditions, delays, API calls, AI completions, loops, subflow calls
and ends). The engine drives one session per end-user address through the
graph, substitutes variables into texts, pauses on delays, calls external
services with bounded retries and hands outbound messages to a channel
transport.

# Concept

The host owns the channels and storage. The engine owns the state machine.
Inbound messages enter through HandleInbound, which finds or creates the
live session of the sender and runs it until the flow waits for the user,
pauses on a timer or ends. Paused sessions are continued by a Scheduler
sweeping the session store.

# Usage

	flows := memory.NewFlows()
	fv, err := convoflow.ParseFlow(doc)
	if err != nil {
		log.Fatal(err)
	}
	if res := convoflow.Validate(fv); !res.IsValid {
		log.Fatal(res.Error())
	}
	_ = flows.Add(fv)
	flows.SetMainFlow("my-bot", fv.FlowID)

	engine := convoflow.New(
		convoflow.WithFlows(flows),
		convoflow.WithTransport(whatsappTransport),
	)
	go engine.Scheduler(10 * time.Second).Run(ctx)

	res, err := engine.HandleInbound(ctx, domain.Inbound{
		BotID:   "my-bot",
		Address: "+5511999990000",
		Text:    "hi",
	})

Simulated inbound messages run test sessions on the newest draft of a flow
and never reach the transport.
*/
package convoflow
