package notify_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/warp/shop-engine/notify"
	"github.com/warp/shop-engine/shop"
)

// MockSQSAPI is a mock type for the SQSAPI type.
type MockSQSAPI struct {
	mock.Mock
}

func (m *MockSQSAPI) SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error) {
	args := m.Called(ctx, params)
	out, _ := args.Get(0).(*sqs.SendMessageOutput)
	return out, args.Error(1)
}

func TestSQSForwarder_SendsEnvelope(t *testing.T) {
	client := new(MockSQSAPI)
	fwd := notify.NewSQSForwarder(client, "https://sqs.local/queue")

	evt := shop.RefundRequested{Refund: shop.Refund{ID: 4, PurchaseID: 9, CustomerID: 2}}

	client.On("SendMessage", mock.Anything, mock.MatchedBy(func(in *sqs.SendMessageInput) bool {
		var body struct {
			Name    string `json:"name"`
			Payload struct {
				Refund shop.Refund `json:"refund"`
			} `json:"payload"`
		}
		if err := json.Unmarshal([]byte(aws.ToString(in.MessageBody)), &body); err != nil {
			return false
		}
		return aws.ToString(in.QueueUrl) == "https://sqs.local/queue" &&
			body.Name == shop.EventRefundRequested &&
			body.Payload.Refund.ID == 4 &&
			aws.ToString(in.MessageAttributes["event"].StringValue) == shop.EventRefundRequested
	})).Return(&sqs.SendMessageOutput{MessageId: aws.String("m-1")}, nil).Once()

	require.NoError(t, fwd.Handle(context.Background(), evt))
	client.AssertExpectations(t)
}

func TestSQSForwarder_WrapsClientError(t *testing.T) {
	client := new(MockSQSAPI)
	fwd := notify.NewSQSForwarder(client, "q")
	sendErr := errors.New("throttled")

	client.On("SendMessage", mock.Anything, mock.Anything).Return(nil, sendErr)

	err := fwd.Handle(context.Background(), shop.RefundDeclined{})
	assert.ErrorIs(t, err, sendErr)
}

func TestSQSForwarder_RegisteredForAllEvents(t *testing.T) {
	client := new(MockSQSAPI)
	client.On("SendMessage", mock.Anything, mock.Anything).Return(&sqs.SendMessageOutput{}, nil)

	bus := notify.NewBus(quietLogger(), 8, 1)
	notify.NewSQSForwarder(client, "q").Register(bus)

	bus.Notify(context.Background(), shop.PurchaseCreated{})
	bus.Notify(context.Background(), shop.GoodDepleted{})
	bus.Close()

	client.AssertNumberOfCalls(t, "SendMessage", 2)
}
